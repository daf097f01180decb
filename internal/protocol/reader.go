// Package protocol implements RESP framing over a TCP connection: the
// incremental array/bulk-string command reader (wire framer) and the reply
// encoder with a small hot-frame cache (response builder).
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/nishisan-dev/redlet/internal/resperr"
)

// maxBulkLen bounds a single bulk string argument to guard against a
// malformed or hostile length header exhausting memory.
const maxBulkLen = 512 * 1024 * 1024

// maxArrayLen bounds the number of arguments in a single command frame.
const maxArrayLen = 1 << 20

// FrameReader incrementally parses RESP command frames (arrays of bulk
// strings) from a connection's buffered reader. Reads resume exactly where
// the previous frame left off because all state lives in the bufio.Reader.
type FrameReader struct {
	br *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// ReadCommand blocks until a full command frame is available and returns
// its arguments as opaque byte strings. Only a RESP array is accepted at
// the top level: any other leading byte, including a bare inline command,
// is a protocol error. A follower reads a leader's simple-string, error
// and integer replies with ReadReplicationFrame instead.
func (fr *FrameReader) ReadCommand() ([][]byte, error) {
	line, err := fr.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, protoErr("empty frame")
	}
	switch line[0] {
	case '*':
		return fr.readArray(line)
	default:
		return nil, protoErr(fmt.Sprintf("expected array header, got %q", line[0]))
	}
}

func (fr *FrameReader) readArray(line []byte) ([][]byte, error) {
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, protoErr("invalid multibulk length")
	}
	if n < 0 {
		return nil, nil
	}
	if n > maxArrayLen {
		return nil, protoErr("invalid multibulk length")
	}
	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := fr.readBulk()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (fr *FrameReader) readBulk() ([]byte, error) {
	line, err := fr.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '$' {
		return nil, protoErr(fmt.Sprintf("expected '$', got %q", firstByte(line)))
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, protoErr("invalid bulk length")
	}
	if n < 0 || n > maxBulkLen {
		return nil, protoErr("invalid bulk length")
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(fr.br, buf); err != nil {
		return nil, wrapProtoErr("reading bulk payload", err)
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return nil, protoErr("expected CRLF after bulk payload")
	}
	return buf[:n], nil
}

// readLine reads a CRLF-terminated line, stripping the terminator.
func (fr *FrameReader) readLine() ([]byte, error) {
	line, err := fr.br.ReadSlice('\n')
	if err != nil {
		return nil, wrapProtoErr("reading line", err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, protoErr("expected CRLF line terminator")
	}
	return line[:len(line)-2], nil
}

// ReadReplicationFrame reads one RESP value of any top-level kind, used by
// the replication follower to parse simple strings/errors/integers sent by
// the leader during the handshake (+PONG, +OK, +FULLRESYNC ..., -ERR ...).
func (fr *FrameReader) ReadReplicationFrame() (kind byte, payload []byte, err error) {
	line, err := fr.readLine()
	if err != nil {
		return 0, nil, err
	}
	if len(line) == 0 {
		return 0, nil, protoErr("empty frame")
	}
	return line[0], line[1:], nil
}

// ReadBulkHeader reads a "$<len>\r\n" header line (no payload) — the
// follower side's counterpart to BulkPayloadHeader, used to learn how
// many raw bytes to read via ReadBulkPayload for the FULLRESYNC snapshot.
func (fr *FrameReader) ReadBulkHeader() (int, error) {
	line, err := fr.readLine()
	if err != nil {
		return 0, err
	}
	if len(line) == 0 || line[0] != '$' {
		return 0, protoErr(fmt.Sprintf("expected '$', got %q", firstByte(line)))
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 0 || n > maxBulkLen {
		return 0, protoErr("invalid bulk length")
	}
	return n, nil
}

// ReadBulkPayload reads exactly n raw bytes (the FULLRESYNC snapshot body,
// which is framed as "$<len>\r\n<bytes>" with no trailing CRLF).
func (fr *FrameReader) ReadBulkPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(fr.br, buf); err != nil {
		return nil, wrapProtoErr("reading bulk snapshot payload", err)
	}
	return buf, nil
}

func firstByte(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

func protoErr(msg string) *resperr.Error {
	return resperr.New(resperr.Protocol, msg)
}

func wrapProtoErr(msg string, err error) *resperr.Error {
	return resperr.Wrap(resperr.Protocol, msg, err)
}
