// Command example is a small runnable demonstration of the server's
// middleware chain and custom command registration, layered on top of
// the built-in PING/ECHO/SET/GET/CONFIG/KEYS handlers. For a real
// deployment use cmd/redkv-server instead, which adds flags, an RDB
// snapshot load, and a metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/l00pss/redkv"
)

func main() {
	server := redkv.NewServer(":6379")

	server.UseFunc(func(conn *redkv.Connection, cmd *redkv.Command, next redkv.CommandHandler) redkv.Value {
		log.Printf("[LOG] command=%s args=%v client=%s", cmd.Name, cmd.Args, conn.RemoteAddr())
		result := next.Handle(conn, cmd)
		log.Printf("[LOG] response kind=%v", result.Kind)
		return result
	})

	server.UseFunc(func(conn *redkv.Connection, cmd *redkv.Command, next redkv.CommandHandler) redkv.Value {
		start := time.Now()
		result := next.Handle(conn, cmd)
		if d := time.Since(start); d > 10*time.Millisecond {
			log.Printf("[TIMING] command %q took %v (slow)", cmd.Name, d)
		}
		return result
	})

	var commandCounts sync.Map // map[*redkv.Connection]int
	server.UseFunc(func(conn *redkv.Connection, cmd *redkv.Command, next redkv.CommandHandler) redkv.Value {
		val, _ := commandCounts.LoadOrStore(conn, 0)
		count := val.(int)
		if count >= 1000 {
			return redkv.Value{Kind: redkv.KindSimpleString, IsError: true, Str: "ERR rate limit exceeded"}
		}
		commandCounts.Store(conn, count+1)
		return next.Handle(conn, cmd)
	})

	server.RegisterCommandFunc("HELLO", func(conn *redkv.Connection, cmd *redkv.Command) redkv.Value {
		if len(cmd.Args) == 0 {
			return redkv.Value{Kind: redkv.KindSimpleString, Str: "Hello from redkv!"}
		}
		return redkv.Value{Kind: redkv.KindBulkString, Bulk: []byte(fmt.Sprintf("Hello, %s!", cmd.Args[0]))}
	})

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		fmt.Println("\nShutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		fmt.Println("Server stopped")
		os.Exit(0)
	}()

	fmt.Println("Starting redkv example server on :6379...")
	fmt.Println("Try: PING, HELLO, HELLO world, SET key value, GET key, KEYS *, CONFIG GET dir")

	if err := server.Serve(); err != nil {
		log.Fatal(err)
	}
}
