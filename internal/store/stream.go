package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nishisan-dev/redlet/internal/resperr"
)

// StreamID is the (millisecond, sequence) pair, totally ordered
// lexicographically on the pair.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

func (id StreamID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

func (id StreamID) IsZero() bool { return id.Ms == 0 && id.Seq == 0 }

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than
// other.
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// MinStreamID and MaxStreamID bound XRANGE's "-" and "+" wildcards.
var (
	MinStreamID = StreamID{0, 0}
	MaxStreamID = StreamID{^uint64(0), ^uint64(0)}
)

// ParseStreamID parses a strict "<ms>-<seq>" id (used for explicit XADD ids
// and for XRANGE bounds once "-"/"+" have been special-cased by the
// caller). A bare "<ms>" is accepted with seq defaulting to 0.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return StreamID{}, idSyntaxErr()
	}
	if len(parts) == 1 {
		return StreamID{Ms: ms}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return StreamID{}, idSyntaxErr()
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

func idSyntaxErr() error {
	return resperr.New(resperr.StreamID, "Invalid stream ID specified as stream command argument")
}

func idTooSmallErr() error {
	return resperr.New(resperr.StreamID, "The ID specified in XADD is equal or smaller than the target stream top item")
}

func idIsZeroErr() error {
	return resperr.New(resperr.StreamID, "The ID specified in XADD must be greater than 0-0")
}

func idExistsErr() error {
	return resperr.New(resperr.StreamID, "The ID specified in XADD already exists")
}

// AllocateStreamID is a pure function of (lastID, hasEntries, requested id
// form, current wall clock ms). It takes no container state so it can be
// exercised directly with literal values.
func AllocateStreamID(lastID StreamID, hasEntries bool, req string, nowMs int64) (StreamID, error) {
	switch {
	case req == "*":
		ms := uint64(nowMs)
		if lastID.Ms > ms {
			ms = lastID.Ms
		}
		var seq uint64
		if lastID.Ms >= ms && hasEntries {
			seq = lastID.Seq + 1
		}
		return StreamID{Ms: ms, Seq: seq}, nil

	case strings.HasSuffix(req, "-*"):
		msPart := strings.TrimSuffix(req, "-*")
		ms, err := strconv.ParseUint(msPart, 10, 64)
		if err != nil {
			return StreamID{}, idSyntaxErr()
		}
		var seq uint64
		switch {
		case hasEntries && ms == lastID.Ms:
			seq = lastID.Seq + 1
		case hasEntries && ms > lastID.Ms:
			seq = 0
		case hasEntries:
			return StreamID{}, idTooSmallErr()
		case ms == 0:
			seq = 1
		default:
			seq = 0
		}
		candidate := StreamID{Ms: ms, Seq: seq}
		if candidate.IsZero() {
			return StreamID{}, idIsZeroErr()
		}
		return candidate, nil

	default:
		candidate, err := ParseStreamID(req)
		if err != nil {
			return StreamID{}, err
		}
		if candidate.IsZero() {
			return StreamID{}, idIsZeroErr()
		}
		if hasEntries && candidate.Compare(lastID) <= 0 {
			return StreamID{}, idTooSmallErr()
		}
		return candidate, nil
	}
}

// StreamField is one field/value pair in an entry's ordered field list.
type StreamField struct {
	Field []byte
	Value []byte
}

// StreamEntry is one inserted record.
type StreamEntry struct {
	ID     StreamID
	Fields []StreamField
}

// Stream is an ordered map from StreamID to entry, append-only (ids
// strictly increase), backed by a slice since insertion order equals id
// order.
type Stream struct {
	entries    []StreamEntry
	lastID     StreamID
	hasEntries bool
}

func NewStream() *Stream { return &Stream{} }

func (s *Stream) Len() int { return len(s.entries) }

func (s *Stream) LastID() (StreamID, bool) { return s.lastID, s.hasEntries }

// Add allocates an id for req and appends the entry.
func (s *Stream) Add(req string, fields []StreamField, nowMs int64) (StreamID, error) {
	id, err := AllocateStreamID(s.lastID, s.hasEntries, req, nowMs)
	if err != nil {
		return StreamID{}, err
	}
	if s.indexOf(id) >= 0 {
		return StreamID{}, idExistsErr()
	}
	s.entries = append(s.entries, StreamEntry{ID: id, Fields: fields})
	s.lastID = id
	s.hasEntries = true
	return id, nil
}

func (s *Stream) indexOf(id StreamID) int {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID.Compare(id) >= 0 })
	if i < len(s.entries) && s.entries[i].ID == id {
		return i
	}
	return -1
}

// Range returns entries with start <= id <= end, capped at count (count<0
// means unbounded).
func (s *Stream) Range(start, end StreamID, count int) []StreamEntry {
	lo := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID.Compare(start) >= 0 })
	var out []StreamEntry
	for i := lo; i < len(s.entries); i++ {
		if s.entries[i].ID.Compare(end) > 0 {
			break
		}
		out = append(out, s.entries[i])
		if count >= 0 && len(out) >= count {
			break
		}
	}
	return out
}

// GetAfter returns entries strictly greater than afterID, up to limit
// (limit<0 means unbounded).
func (s *Stream) GetAfter(afterID StreamID, limit int) []StreamEntry {
	lo := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID.Compare(afterID) > 0 })
	var out []StreamEntry
	for i := lo; i < len(s.entries); i++ {
		out = append(out, s.entries[i])
		if limit >= 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// --- Keyspace-level stream operations -----------------------------------

func (k *Keyspace) streamEntryFor(key string, createIfMissing bool) (*entry, error) {
	e, err := k.typeCheck(key, TypeStream)
	if err != nil {
		return nil, err
	}
	if e == nil && createIfMissing {
		e = &entry{typ: TypeStream, stream: NewStream()}
		k.data[key] = e
		k.obs.DataAdded(key)
	}
	return e, nil
}

func (k *Keyspace) XAdd(key, idReq string, fields []StreamField, nowMs int64) (StreamID, error) {
	e, err := k.streamEntryFor(key, true)
	if err != nil {
		return StreamID{}, err
	}
	id, err := e.stream.Add(idReq, fields, nowMs)
	if err != nil {
		if e.stream.Len() == 0 {
			delete(k.data, key)
			k.obs.DataRemoved(key)
		}
		return StreamID{}, err
	}
	k.obs.KeyModified(key)
	return id, nil
}

func (k *Keyspace) XRange(key string, start, end StreamID, count int) ([]StreamEntry, error) {
	e, err := k.streamEntryFor(key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.stream.Range(start, end, count), nil
}

// XGetAfter returns entries with ids strictly greater than after. It does
// not resolve "$"; callers use XLastID for that.
func (k *Keyspace) XGetAfter(key string, after StreamID, limit int) ([]StreamEntry, error) {
	e, err := k.streamEntryFor(key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.stream.GetAfter(after, limit), nil
}

// XLastID returns the stream's current last id, or the zero id if the
// stream is absent/empty — used to resolve blocking XREAD's "$".
func (k *Keyspace) XLastID(key string) StreamID {
	e, _ := k.streamEntryFor(key, false)
	if e == nil {
		return StreamID{}
	}
	id, _ := e.stream.LastID()
	return id
}
