package protocol

import (
	"strconv"
)

// Frame is a pre-encoded, immutable RESP reply. Handing out a Frame never
// copies its bytes; callers that need to append more data take Bytes() and
// build a fresh slice. Build once, write many.
type Frame struct {
	b []byte
}

func (f Frame) Bytes() []byte { return f.b }

func raw(b []byte) Frame { return Frame{b: b} }

// Raw wraps an already-encoded byte sequence as a Frame, for callers
// (replication's FULLRESYNC response) that build a composite reply out of
// more than one encoder's output.
func Raw(b []byte) Frame { return raw(b) }

// SimpleString encodes "+<s>\r\n".
func SimpleString(s string) Frame {
	return raw(append([]byte{'+'}, append([]byte(s), '\r', '\n')...))
}

// Err encodes "-<s>\r\n".
func Err(s string) Frame {
	return raw(append([]byte{'-'}, append([]byte(s), '\r', '\n')...))
}

// Integer encodes ":<n>\r\n".
func Integer(n int64) Frame {
	return raw(append([]byte{':'}, append([]byte(strconv.FormatInt(n, 10)), '\r', '\n')...))
}

// BulkString encodes "$<len>\r\n<data>\r\n".
func BulkString(data []byte) Frame {
	buf := make([]byte, 0, len(data)+16)
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(data)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, data...)
	buf = append(buf, '\r', '\n')
	return raw(buf)
}

// NilBulk encodes "$-1\r\n".
func NilBulk() Frame { return raw([]byte("$-1\r\n")) }

// NilArray encodes "*-1\r\n".
func NilArray() Frame { return raw([]byte("*-1\r\n")) }

// Array concatenates a header "*<n>\r\n" with the pre-encoded elements.
func Array(elems ...Frame) Frame {
	total := 16
	for _, e := range elems {
		total += len(e.b)
	}
	buf := make([]byte, 0, total)
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(elems)), 10)
	buf = append(buf, '\r', '\n')
	for _, e := range elems {
		buf = append(buf, e.b...)
	}
	return raw(buf)
}

// BulkStringArray is a convenience wrapper for []byte arrays.
func BulkStringArray(items [][]byte) Frame {
	elems := make([]Frame, len(items))
	for i, it := range items {
		elems[i] = BulkString(it)
	}
	return Array(elems...)
}

// BulkPayloadHeader encodes the FULLRESYNC snapshot length prefix:
// "$<len>\r\n" followed directly by the raw bytes, written separately,
// with no trailing CRLF after the payload.
func BulkPayloadHeader(n int) Frame {
	buf := make([]byte, 0, 16)
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(n), 10)
	buf = append(buf, '\r', '\n')
	return raw(buf)
}

// FullResyncHeader encodes "+FULLRESYNC <id> <offset>\r\n".
func FullResyncHeader(replicationID string, offset int64) Frame {
	s := "FULLRESYNC " + replicationID + " " + strconv.FormatInt(offset, 10)
	return SimpleString(s)
}

// --- Hot frame cache -------------------------------------------------

var (
	cachedOK       = SimpleString("OK")
	cachedPong     = SimpleString("PONG")
	cachedQueued   = SimpleString("QUEUED")
	cachedNilBulk  = NilBulk()
	cachedNilArray = NilArray()
	cachedIntegers [111]Frame // [-10, 100]
)

func init() {
	for i := -10; i <= 100; i++ {
		cachedIntegers[i+10] = Integer(int64(i))
	}
}

// OK, Pong, Queued, CachedNilBulk, CachedNilArray hand out memoized frames;
// since Frame only exposes read-only Bytes(), duplication is unnecessary —
// callers get cheap, safe, shared views onto the same backing array.
func OK() Frame { return cachedOK }

func Pong() Frame { return cachedPong }

func Queued() Frame { return cachedQueued }

func CachedNilBulk() Frame { return cachedNilBulk }

func CachedNilArray() Frame { return cachedNilArray }

// CachedInteger returns the memoized frame for small integers in
// [-10, 100], and the empty-ok flag is false outside that range.
func CachedInteger(n int64) (Frame, bool) {
	if n < -10 || n > 100 {
		return Frame{}, false
	}
	return cachedIntegers[n+10], true
}

// IntegerFrame is Integer() but consults the cache first.
func IntegerFrame(n int64) Frame {
	if f, ok := CachedInteger(n); ok {
		return f
	}
	return Integer(n)
}
