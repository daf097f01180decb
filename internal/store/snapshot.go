package store

import "time"

// Snapshot is the CBOR-serializable form of one keyspace entry, produced
// by Dump and consumed by Load. It mirrors entry's tagged-union shape but
// with exported fields so internal/snapshotstore can hand it to a CBOR
// codec without this package knowing anything about encoding.
type Snapshot struct {
	Key         string
	Type        ValueType
	Str         []byte          `cbor:"str,omitempty"`
	List        [][]byte        `cbor:"list,omitempty"`
	ZSet        []ZMember       `cbor:"zset,omitempty"`
	Stream      []StreamEntry   `cbor:"stream,omitempty"`
	ExpireAtUnixMs int64        `cbor:"expire_at_ms,omitempty"`
}

// Dump walks every live key and returns its typed value as a Snapshot,
// skipping (without removing) expired keys so a bootstrap follower never
// receives an entry that has already lapsed.
func (k *Keyspace) Dump() []Snapshot {
	now := k.now()
	out := make([]Snapshot, 0, len(k.data))
	for key, e := range k.data {
		if e.expired(now) {
			continue
		}
		s := Snapshot{Key: key, Type: e.typ}
		if e.hasExpiry() {
			s.ExpireAtUnixMs = e.expireAt.UnixMilli()
		}
		switch e.typ {
		case TypeString:
			s.Str = append([]byte(nil), e.str...)
		case TypeList:
			s.List = e.list.Range(0, -1)
		case TypeSortedSet:
			for _, ze := range e.zset.RangeByRank(0, -1) {
				s.ZSet = append(s.ZSet, ZMember{Member: ze.member, Score: ze.score})
			}
		case TypeStream:
			s.Stream = e.stream.Range(StreamID{}, MaxStreamID, -1)
		}
		out = append(out, s)
	}
	return out
}

// Load replaces the keyspace's contents with snaps, as the follower side
// of a FULLRESYNC bootstrap or a snapshot-hook restore. It emits no
// per-key observer events, only a single StoreCleared once the new
// contents are in place, so watching transactions are invalidated.
func (k *Keyspace) Load(snaps []Snapshot) {
	data := make(map[string]*entry, len(snaps))
	for _, s := range snaps {
		e := &entry{typ: s.Type}
		if s.ExpireAtUnixMs != 0 {
			e.expireAt = time.UnixMilli(s.ExpireAtUnixMs)
		}
		switch s.Type {
		case TypeString:
			e.str = s.Str
		case TypeList:
			e.list = NewList()
			e.list.PushRight(s.List...)
		case TypeSortedSet:
			e.zset = NewSortedSet()
			for _, m := range s.ZSet {
				e.zset.Add(m.Member, m.Score)
			}
		case TypeStream:
			e.stream = NewStream()
			e.stream.entries = append(e.stream.entries, s.Stream...)
			if len(s.Stream) > 0 {
				e.stream.lastID = s.Stream[len(s.Stream)-1].ID
				e.stream.hasEntries = true
			}
		default:
			continue
		}
		data[s.Key] = e
	}
	k.data = data
	k.obs.StoreCleared()
}
