/*
Command redkv-server runs the key-value server: it parses flags and an
optional YAML config file, optionally loads an RDB snapshot, starts the
TCP listener and a Prometheus metrics endpoint, and shuts down
gracefully on SIGINT/SIGTERM. The default "serve" run does all of that;
the "config-check" subcommand loads and prints the effective
configuration without starting the listener.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/l00pss/redkv"
	"github.com/l00pss/redkv/internal/confengine"
)

var (
	flagAddress        string
	flagDir            string
	flagDBFilename     string
	flagShards         int
	flagMetricsAddress string
	flagLogLevel       string
	flagLogFile        string
	flagConfigPath     string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "redkv-server",
		Short: "A minimal Redis-wire-compatible key-value server",
		RunE:  runServe,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&flagAddress, "addr", "127.0.0.1:6379", "address to listen on")
	flags.StringVar(&flagDir, "dir", "", "directory containing the RDB snapshot to load at startup")
	flags.StringVar(&flagDBFilename, "dbfilename", "", "RDB snapshot filename within --dir")
	flags.IntVar(&flagShards, "shards", 0, "shard the keyspace across N rendezvous-hashed partitions (0 = single keyspace)")
	flags.StringVar(&flagMetricsAddress, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&flagLogFile, "log-file", "", "rotate logs to this file in addition to stdout")
	flags.StringVar(&flagConfigPath, "config", "", "optional YAML config file; flags take precedence over it")

	root.AddCommand(&cobra.Command{
		Use:   "config-check",
		Short: "Load and print the effective configuration, without starting the listener",
		RunE:  runConfigCheck,
	})

	return root
}

// applyConfigFile fills in any flag not set on the command line from a
// non-empty value in the YAML file at flagConfigPath. Flags the user
// actually set always win.
func applyConfigFile(cmd *cobra.Command) error {
	if flagConfigPath == "" {
		return nil
	}
	conf, err := confengine.LoadConfigPath(flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flagConfigPath, err)
	}
	var settings confengine.ServerSettings
	if err := conf.Unpack(&settings); err != nil {
		return fmt.Errorf("unpack config %s: %w", flagConfigPath, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("addr") && settings.Address != "" {
		flagAddress = settings.Address
	}
	if !flags.Changed("dir") && settings.Dir != "" {
		flagDir = settings.Dir
	}
	if !flags.Changed("dbfilename") && settings.DBFilename != "" {
		flagDBFilename = settings.DBFilename
	}
	if !flags.Changed("shards") && settings.Shards != 0 {
		flagShards = settings.Shards
	}
	if !flags.Changed("metrics-addr") && settings.MetricsAddress != "" {
		flagMetricsAddress = settings.MetricsAddress
	}
	if !flags.Changed("log-level") && settings.LogLevel != "" {
		flagLogLevel = settings.LogLevel
	}
	if !flags.Changed("log-file") && settings.LogFile != "" {
		flagLogFile = settings.LogFile
	}
	return nil
}

// runConfigCheck loads flags and any --config file, applies the
// flags-win-over-file precedence, and prints the effective settings
// without starting the listener. Useful for validating a deployment's
// config before rolling it out.
func runConfigCheck(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd); err != nil {
		return err
	}

	fmt.Printf("addr: %s\n", flagAddress)
	fmt.Printf("dir: %s\n", flagDir)
	fmt.Printf("dbfilename: %s\n", flagDBFilename)
	fmt.Printf("shards: %d\n", flagShards)
	fmt.Printf("metrics-addr: %s\n", flagMetricsAddress)
	fmt.Printf("log-level: %s\n", flagLogLevel)
	fmt.Printf("log-file: %s\n", flagLogFile)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd); err != nil {
		return err
	}

	server := redkv.NewServer(flagAddress)
	server.Config = &redkv.Config{Dir: flagDir, DBFilename: flagDBFilename}
	if flagShards > 0 {
		server.Keyspace = redkv.NewShardedKeyspace(flagShards)
	}
	server.Log = redkv.NewLogger(redkv.LogOptions{
		Stdout:   true,
		Level:    flagLogLevel,
		Filename: flagLogFile,
	})

	if err := server.LoadSnapshot(); err != nil {
		return err
	}

	if flagMetricsAddress != "" {
		metricsSrv := &http.Server{
			Addr:     flagMetricsAddress,
			Handler:  promhttp.Handler(),
			ErrorLog: redkv.NewStdErrorLog(server.Log),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		server.OnShutdown(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(ctx)
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	return server.ListenAndServe()
}
