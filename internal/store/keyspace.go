package store

import (
	"time"
)

// ValueType tags the variant held by an entry.
type ValueType int

const (
	TypeNone ValueType = iota
	TypeString
	TypeList
	TypeSortedSet
	TypeStream
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSortedSet:
		return "zset"
	case TypeStream:
		return "stream"
	default:
		return "none"
	}
}

// entry is the keyspace's internal representation: a tagged value plus an
// optional absolute expiry instant. Exactly one of the typed fields is
// populated; a key maps to exactly one typed value.
type entry struct {
	typ      ValueType
	str      []byte
	list     *List
	zset     *SortedSet
	stream   *Stream
	expireAt time.Time // zero means no expiry
}

func (e *entry) hasExpiry() bool { return !e.expireAt.IsZero() }

func (e *entry) expired(now time.Time) bool {
	return e.hasExpiry() && !now.Before(e.expireAt)
}

// Keyspace is the single mutation point for the typed keyspace. It is not
// internally synchronized: all mutation happens on the single engine
// goroutine, so no lock is required here.
type Keyspace struct {
	data  map[string]*entry
	obs   Observers
	nowFn func() time.Time
}

func New() *Keyspace {
	return &Keyspace{
		data:  make(map[string]*entry),
		nowFn: time.Now,
	}
}

// AddObserver registers a mutation observer.
func (k *Keyspace) AddObserver(o Observer) { k.obs.Add(o) }

func (k *Keyspace) now() time.Time { return k.nowFn() }

// lookup returns the live entry for key, first evicting it if expired:
// an expired key is removed before any access proceeds.
func (k *Keyspace) lookup(key string) *entry {
	e, ok := k.data[key]
	if !ok {
		return nil
	}
	if e.expired(k.now()) {
		delete(k.data, key)
		k.obs.ExpiredKeysRemoved([]string{key})
		k.obs.DataRemoved(key)
		return nil
	}
	return e
}

// Type reports the type of key, or TypeNone if it doesn't exist.
func (k *Keyspace) Type(key string) ValueType {
	e := k.lookup(key)
	if e == nil {
		return TypeNone
	}
	return e.typ
}

// Exists reports whether key currently holds a value.
func (k *Keyspace) Exists(key string) bool {
	return k.lookup(key) != nil
}

// Delete removes key unconditionally. Returns whether it existed.
func (k *Keyspace) Delete(key string) bool {
	if k.lookup(key) == nil {
		return false
	}
	delete(k.data, key)
	k.obs.DataRemoved(key)
	k.obs.KeyModified(key)
	return true
}

// Keys returns every live (non-expired) key, sweeping expired entries as a
// side effect.
func (k *Keyspace) Keys() []string {
	now := k.now()
	var expired []string
	keys := make([]string, 0, len(k.data))
	for key, e := range k.data {
		if e.expired(now) {
			expired = append(expired, key)
			continue
		}
		keys = append(keys, key)
	}
	for _, key := range expired {
		delete(k.data, key)
	}
	k.obs.ExpiredKeysRemoved(expired)
	for _, key := range expired {
		k.obs.DataRemoved(key)
	}
	return keys
}

// DBSize returns the number of live keys (lazily sweeping expired ones
// encountered along the way, same discipline as Keys but without the
// allocation of a key slice).
func (k *Keyspace) DBSize() int {
	now := k.now()
	var expired []string
	for key, e := range k.data {
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(k.data, key)
	}
	k.obs.ExpiredKeysRemoved(expired)
	for _, key := range expired {
		k.obs.DataRemoved(key)
	}
	return len(k.data)
}

// FlushAll empties the keyspace.
func (k *Keyspace) FlushAll() {
	k.data = make(map[string]*entry)
	k.obs.StoreCleared()
}

// Expire sets key's absolute expiry instant (PEXPIREAT semantics). Returns
// whether key exists.
func (k *Keyspace) Expire(key string, at time.Time) bool {
	e := k.lookup(key)
	if e == nil {
		return false
	}
	e.expireAt = at
	return true
}

// Persist clears any expiry on key. Returns whether it changed anything.
func (k *Keyspace) Persist(key string) bool {
	e := k.lookup(key)
	if e == nil || !e.hasExpiry() {
		return false
	}
	e.expireAt = time.Time{}
	return true
}

// TTL returns the remaining time to live, ok=false if key has no expiry or
// doesn't exist.
func (k *Keyspace) TTL(key string) (time.Duration, bool) {
	e := k.lookup(key)
	if e == nil || !e.hasExpiry() {
		return 0, false
	}
	return e.expireAt.Sub(k.now()), true
}

// SweepExpired removes up to limit expired keys regardless of whether they
// were otherwise accessed, matching the scheduler's periodic bounded sweep.
// limit<=0 means unbounded.
func (k *Keyspace) SweepExpired(limit int) []string {
	now := k.now()
	var expired []string
	for key, e := range k.data {
		if limit > 0 && len(expired) >= limit {
			break
		}
		if e.expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(k.data, key)
	}
	k.obs.ExpiredKeysRemoved(expired)
	for _, key := range expired {
		k.obs.DataRemoved(key)
	}
	return expired
}

// typeCheck fetches key's entry and verifies it is either absent or of the
// expected type, returning WRONGTYPE otherwise. A nil entry with a nil
// error signals "absent, create a new one."
func (k *Keyspace) typeCheck(key string, want ValueType) (*entry, error) {
	e := k.lookup(key)
	if e == nil {
		return nil, nil
	}
	if e.typ != want {
		return nil, wrongType()
	}
	return e, nil
}
