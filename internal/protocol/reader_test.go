package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/nishisan-dev/redlet/internal/resperr"
)

func TestReadCommand_SimpleArray(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")))

	args, err := fr.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if len(args) != 2 || string(args[0]) != "GET" || string(args[1]) != "foo" {
		t.Fatalf("unexpected args: %q", args)
	}
}

func TestReadCommand_BinarySafeArguments(t *testing.T) {
	payload := []byte("a\r\nb\x00c")
	frame := BulkStringArray([][]byte{[]byte("SET"), []byte("k"), payload})
	fr := NewFrameReader(bytes.NewReader(frame.Bytes()))

	args, err := fr.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if !bytes.Equal(args[2], payload) {
		t.Fatalf("payload corrupted: %q", args[2])
	}
}

func TestReadCommand_ResumesAcrossPartialWrites(t *testing.T) {
	// A frame split across two writes must parse once the second half
	// arrives, picking up exactly where the buffered reader left off.
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	full := []byte("*1\r\n$4\r\nPING\r\n")
	go func() {
		client.Write(full[:5])
		client.Write(full[5:])
	}()

	fr := NewFrameReader(server)
	args, err := fr.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if len(args) != 1 || string(args[0]) != "PING" {
		t.Fatalf("unexpected args: %q", args)
	}
}

func TestReadCommand_BackToBackFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(BulkStringArray([][]byte{[]byte("PING")}).Bytes())
	buf.Write(BulkStringArray([][]byte{[]byte("ECHO"), []byte("hi")}).Bytes())

	fr := NewFrameReader(&buf)
	first, err := fr.ReadCommand()
	if err != nil || string(first[0]) != "PING" {
		t.Fatalf("first frame: %q, %v", first, err)
	}
	second, err := fr.ReadCommand()
	if err != nil || string(second[0]) != "ECHO" || string(second[1]) != "hi" {
		t.Fatalf("second frame: %q, %v", second, err)
	}
}

func TestReadCommand_MalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"wrong prefix", "GET foo\r\n"},
		{"bad array length", "*x\r\n"},
		{"bad bulk prefix", "*1\r\n:5\r\n"},
		{"bad bulk length", "*1\r\n$x\r\n"},
		{"negative bulk length", "*1\r\n$-5\r\n"},
		{"missing CRLF after payload", "*1\r\n$3\r\nfooXX"},
		{"bare LF line", "*1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fr := NewFrameReader(bytes.NewReader([]byte(tc.input)))
			_, err := fr.ReadCommand()
			var re *resperr.Error
			if err == nil || !errors.As(err, &re) || re.Kind != resperr.Protocol {
				t.Fatalf("expected protocol error, got %v", err)
			}
		})
	}
}

func TestReadReplicationFrame_TopLevelKinds(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte("+PONG\r\n-ERR nope\r\n:42\r\n")))

	kind, payload, err := fr.ReadReplicationFrame()
	if err != nil || kind != '+' || string(payload) != "PONG" {
		t.Fatalf("simple string: %c %q %v", kind, payload, err)
	}
	kind, payload, err = fr.ReadReplicationFrame()
	if err != nil || kind != '-' || string(payload) != "ERR nope" {
		t.Fatalf("error frame: %c %q %v", kind, payload, err)
	}
	kind, payload, err = fr.ReadReplicationFrame()
	if err != nil || kind != ':' || string(payload) != "42" {
		t.Fatalf("integer frame: %c %q %v", kind, payload, err)
	}
}

func TestReadBulkHeaderAndPayload(t *testing.T) {
	// FULLRESYNC framing: "$<len>\r\n<bytes>" with no trailing CRLF.
	snapshot := []byte{0x01, 0x02, 0x03, 0xff}
	var buf bytes.Buffer
	buf.Write(BulkPayloadHeader(len(snapshot)).Bytes())
	buf.Write(snapshot)

	fr := NewFrameReader(&buf)
	n, err := fr.ReadBulkHeader()
	if err != nil || n != len(snapshot) {
		t.Fatalf("ReadBulkHeader: %d, %v", n, err)
	}
	got, err := fr.ReadBulkPayload(n)
	if err != nil || !bytes.Equal(got, snapshot) {
		t.Fatalf("ReadBulkPayload: %q, %v", got, err)
	}

	// And nothing should remain buffered.
	if _, err := fr.ReadCommand(); !errors.Is(err, io.EOF) {
		var re *resperr.Error
		if !errors.As(err, &re) {
			t.Fatalf("expected EOF-ish error after payload, got %v", err)
		}
	}
}
