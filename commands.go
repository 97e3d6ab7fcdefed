/*
Package redkv: built-in command handlers.

This core implements exactly the command surface needed to speak a
useful, testable subset of the Redis wire protocol: connection
handshake (PING/ECHO), the key-value pair (SET/GET), and two read-only
introspection commands (CONFIG GET/KEYS). Everything else falls through
to the unknown-command reply in handleCommand (server.go).
*/
package redkv

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	cmdPing   = "PING"
	cmdEcho   = "ECHO"
	cmdSet    = "SET"
	cmdGet    = "GET"
	cmdConfig = "CONFIG"
	cmdKeys   = "KEYS"
)

func okReply() Value   { return Value{Kind: KindSimpleString, Str: "OK"} }
func pongReply() Value { return Value{Kind: KindSimpleString, Str: "PONG"} }

func errReply(format string, args ...any) Value {
	return Value{Kind: KindSimpleString, IsError: true, Str: fmt.Sprintf(format, args...)}
}

func bulk(s string) Value { return Value{Kind: KindBulkString, Bulk: []byte(s)} }

// registerDefaultHandlers wires the core command table into s.handlers.
func (s *Server) registerDefaultHandlers() {
	s.RegisterCommandFunc(cmdPing, handlePing)
	s.RegisterCommandFunc(cmdEcho, handleEcho)
	s.RegisterCommandFunc(cmdSet, handleSet)
	s.RegisterCommandFunc(cmdGet, handleGet)
	s.RegisterCommandFunc(cmdConfig, handleConfig)
	s.RegisterCommandFunc(cmdKeys, handleKeys)
}

// handlePing replies PONG, or echoes a single argument back as a bulk
// string (matching real Redis's PING [message] form).
func handlePing(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) == 0 {
		return pongReply()
	}
	return bulk(cmd.Args[0])
}

func handleEcho(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) != 1 {
		return errReply("ERR wrong number of arguments for 'echo' command")
	}
	return bulk(cmd.Args[0])
}

// handleSet implements SET key value [PX milliseconds]. Any expiry is
// stored as an absolute instant; a bare SET clears a previous expiry by
// overwriting the Item outright.
func handleSet(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) < 2 {
		return errReply("ERR wrong number of arguments for 'set' command")
	}
	key, value := cmd.Args[0], cmd.Args[1]

	var expiresAt time.Time
	rest := cmd.Args[2:]
	for i := 0; i < len(rest); i++ {
		if !strings.EqualFold(rest[i], "PX") {
			return errReply("ERR syntax error")
		}
		if i+1 >= len(rest) {
			return errReply("ERR syntax error")
		}
		ms, err := cast.ToInt64E(rest[i+1])
		if err != nil || ms < 0 {
			return errReply("ERR value is not an integer or out of range")
		}
		expiresAt = time.Now().Add(time.Duration(ms) * time.Millisecond)
		i++
	}

	conn.server.Keyspace.Set(key, []byte(value), expiresAt)
	return okReply()
}

func handleGet(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) != 1 {
		return errReply("ERR wrong number of arguments for 'get' command")
	}
	data, ok := conn.server.Keyspace.Get(cmd.Args[0])
	if !ok {
		return Value{Kind: KindNullBulk}
	}
	return Value{Kind: KindBulkString, Bulk: data}
}

// handleConfig implements CONFIG GET parameter.
func handleConfig(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) < 1 {
		return errReply("ERR wrong number of arguments for 'config' command")
	}
	sub := strings.ToUpper(cmd.Args[0])
	if sub != "GET" || len(cmd.Args) != 2 {
		return errReply("ERR unsupported CONFIG subcommand")
	}
	name := strings.ToLower(cmd.Args[1])
	val, ok := conn.server.Config.Get(name)
	if !ok {
		return Value{Kind: KindArray, Array: []Value{}}
	}
	return Value{Kind: KindArray, Array: []Value{bulk(name), bulk(val)}}
}

// handleKeys implements KEYS pattern. Only the literal "*" pattern
// (match everything) is supported; anything else is rejected rather
// than silently matching nothing, since glob matching is out of scope.
func handleKeys(conn *Connection, cmd *Command) Value {
	if len(cmd.Args) != 1 {
		return errReply("ERR wrong number of arguments for 'keys' command")
	}
	if cmd.Args[0] != "*" {
		return errReply("ERR unsupported pattern, only '*' is implemented")
	}
	keys := conn.server.Keyspace.Keys()
	elems := make([]Value, len(keys))
	for i, k := range keys {
		elems[i] = bulk(k)
	}
	return Value{Kind: KindArray, Array: elems}
}
