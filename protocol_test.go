package redkv

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseSimpleString(t *testing.T) {
	v, n, err := Parse([]byte("+OK\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindSimpleString || v.Str != "OK" {
		t.Errorf("expected simple string OK, got %+v", v)
	}
	if n != 5 {
		t.Errorf("expected 5 consumed bytes, got %d", n)
	}
}

func TestParseBulkString(t *testing.T) {
	v, n, err := Parse([]byte("$5\r\nhello\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindBulkString || string(v.Bulk) != "hello" {
		t.Errorf("expected bulk string hello, got %+v", v)
	}
	if n != 11 {
		t.Errorf("expected 11 consumed bytes, got %d", n)
	}
}

func TestParseNullBulk(t *testing.T) {
	v, n, err := Parse([]byte("$-1\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindNullBulk {
		t.Errorf("expected null bulk, got %+v", v)
	}
	if n != 5 {
		t.Errorf("expected 5 consumed bytes, got %d", n)
	}
}

func TestParseArray(t *testing.T) {
	raw := "*2\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"
	v, n, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != KindArray || len(v.Array) != 2 {
		t.Fatalf("expected 2-element array, got %+v", v)
	}
	if string(v.Array[0].Bulk) != "foo" || string(v.Array[1].Bulk) != "bar" {
		t.Errorf("unexpected array contents: %+v", v.Array)
	}
	if n != len(raw) {
		t.Errorf("expected %d consumed bytes, got %d", len(raw), n)
	}
}

// Round trip: Serialize(Parse(buf)) reproduces buf exactly.
func TestRoundTrip(t *testing.T) {
	cases := []string{
		"+PONG\r\n",
		"$3\r\nfoo\r\n",
		"$0\r\n\r\n",
		"$-1\r\n",
		"*0\r\n",
		"*2\r\n$4\r\nPING\r\n$5\r\nhello\r\n",
	}
	for _, raw := range cases {
		v, n, err := Parse([]byte(raw))
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", raw, err)
		}
		if n != len(raw) {
			t.Fatalf("Parse(%q): consumed %d, want %d", raw, n, len(raw))
		}
		out := Serialize(v)
		if !bytes.Equal(out, []byte(raw)) {
			t.Errorf("round trip mismatch: got %q, want %q", out, raw)
		}
	}
}

// Prefix-incomplete: every strict prefix of a valid frame (other than the
// empty buffer, covered by TestParseEmptyBufferIsIncomplete) returns ErrIncomplete,
// never a malformed error and never a spurious success.
func TestPrefixIncomplete(t *testing.T) {
	full := "*2\r\n$4\r\nPING\r\n$5\r\nhello\r\n"
	for i := 1; i < len(full); i++ {
		prefix := full[:i]
		_, _, err := Parse([]byte(prefix))
		if err == nil {
			t.Fatalf("Parse(%q): expected an error on incomplete prefix", prefix)
		}
		if !errors.Is(err, ErrIncomplete) && !IsMalformed(err) {
			t.Fatalf("Parse(%q): unexpected error type: %v", prefix, err)
		}
		if errors.Is(err, ErrIncomplete) {
			continue
		}
		// A prefix cut mid-header can only be legitimately "malformed" if the
		// bytes available so far already contain a bad CRLF; for this well
		// formed frame that never happens, so any non-incomplete result here
		// is a bug.
		t.Fatalf("Parse(%q): unexpectedly malformed: %v", prefix, err)
	}
}

// Byte-transparent bulk strings: binary payloads including embedded CR/LF
// and NUL bytes survive a parse/serialize round trip unchanged.
func TestByteTransparentBulkString(t *testing.T) {
	payload := []byte{0x00, 'a', '\r', '\n', 0xFF, 'b'}
	raw := Serialize(Value{Kind: KindBulkString, Bulk: payload})

	v, n, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(raw) {
		t.Errorf("expected to consume entire frame, got %d of %d", n, len(raw))
	}
	if !bytes.Equal(v.Bulk, payload) {
		t.Errorf("expected payload %v, got %v", payload, v.Bulk)
	}
}

func TestParseMalformedInputs(t *testing.T) {
	cases := []string{
		"!OK\r\n",              // unknown leading byte
		"+OK\n",                // bare LF, no CR
		"$abc\r\n",             // non-numeric length header
		"$-2\r\n",              // negative length other than -1
		"$3\r\nfooXY",          // missing trailing CRLF after bulk payload
		"*-1\r\n",              // negative array length
	}
	for _, raw := range cases {
		_, _, err := Parse([]byte(raw))
		if err == nil {
			t.Errorf("Parse(%q): expected malformed error, got none", raw)
			continue
		}
		if errors.Is(err, ErrIncomplete) {
			t.Errorf("Parse(%q): expected malformed, got ErrIncomplete", raw)
		}
	}
}

func TestParseEmptyBufferIsIncomplete(t *testing.T) {
	_, _, err := Parse(nil)
	if !errors.Is(err, ErrIncomplete) {
		t.Errorf("expected ErrIncomplete for empty buffer, got %v", err)
	}
}

func TestExtractCommand(t *testing.T) {
	v := Value{Kind: KindArray, Array: []Value{
		{Kind: KindBulkString, Bulk: []byte("SET")},
		{Kind: KindBulkString, Bulk: []byte("key")},
		{Kind: KindBulkString, Bulk: []byte("value")},
	}}
	cmd, err := ExtractCommand(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Name != "SET" {
		t.Errorf("expected command name SET, got %q", cmd.Name)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "key" || cmd.Args[1] != "value" {
		t.Errorf("unexpected args: %v", cmd.Args)
	}
}

func TestExtractCommandRejectsNonArray(t *testing.T) {
	_, err := ExtractCommand(Value{Kind: KindSimpleString, Str: "OK"})
	if err == nil {
		t.Error("expected error for non-array top-level frame")
	}
}

func TestExtractCommandRejectsEmptyArray(t *testing.T) {
	_, err := ExtractCommand(Value{Kind: KindArray, Array: nil})
	if err == nil {
		t.Error("expected error for empty command array")
	}
}

func TestExtractCommandRejectsNonBulkElements(t *testing.T) {
	v := Value{Kind: KindArray, Array: []Value{
		{Kind: KindSimpleString, Str: "SET"},
	}}
	if _, err := ExtractCommand(v); err == nil {
		t.Error("expected error when command name is not a bulk string")
	}

	v2 := Value{Kind: KindArray, Array: []Value{
		{Kind: KindBulkString, Bulk: []byte("SET")},
		{Kind: KindArray, Array: nil},
	}}
	if _, err := ExtractCommand(v2); err == nil {
		t.Error("expected error when an argument is not a bulk string")
	}
}
