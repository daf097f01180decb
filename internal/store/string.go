package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/resperr"
)

// Get returns the byte string at key, or (nil, nil) if absent.
func (k *Keyspace) Get(key string) ([]byte, error) {
	e, err := k.typeCheck(key, TypeString)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e.str, nil
}

// Set stores a byte string at key, replacing whatever was there, with an
// optional absolute expiry (zero time means none).
func (k *Keyspace) Set(key string, value []byte, expireAt time.Time) {
	existed := k.data[key] != nil
	k.data[key] = &entry{typ: TypeString, str: append([]byte(nil), value...), expireAt: expireAt}
	if !existed {
		k.obs.DataAdded(key)
	}
	k.obs.KeyModified(key)
}

// IncrBy parses the current value as a base-10 int64 (missing key treated
// as 0), adds delta, rejects overflow and non-integer text, and writes the
// canonical decimal form back.
func (k *Keyspace) IncrBy(key string, delta int64) (int64, error) {
	e, err := k.typeCheck(key, TypeString)
	if err != nil {
		return 0, err
	}
	var cur int64
	if e != nil {
		n, perr := parseStoredInt(e.str)
		if perr != nil {
			return 0, perr
		}
		cur = n
	}
	next, ok := addOverflowSafe(cur, delta)
	if !ok {
		return 0, resperr.ErrOverflow
	}
	text := strconv.FormatInt(next, 10)
	if e != nil {
		e.str = []byte(text)
	} else {
		k.data[key] = &entry{typ: TypeString, str: []byte(text)}
		k.obs.DataAdded(key)
	}
	k.obs.KeyModified(key)
	return next, nil
}

func parseStoredInt(b []byte) (int64, error) {
	s := strings.TrimSpace(string(b))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, resperr.ErrNotInteger
	}
	return n, nil
}

func addOverflowSafe(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
