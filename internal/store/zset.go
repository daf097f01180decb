package store

import "sort"

type zsetEntry struct {
	member string
	score  float64
}

func zsetLess(a, b zsetEntry) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.member < b.member
}

// SortedSet keeps a member→score map for O(1) score lookup and a
// score-ordered index (sorted slice, binary-search insert) supporting range
// queries by rank or by score. Ties on score break by member bytes.
type SortedSet struct {
	scores map[string]float64
	index  []zsetEntry
}

func NewSortedSet() *SortedSet {
	return &SortedSet{scores: make(map[string]float64)}
}

func (z *SortedSet) Card() int { return len(z.scores) }

func (z *SortedSet) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Add sets member's score, returning whether it was newly inserted.
func (z *SortedSet) Add(member string, score float64) bool {
	if old, ok := z.scores[member]; ok {
		if old == score {
			return false
		}
		z.removeFromIndex(zsetEntry{member, old})
		z.scores[member] = score
		z.insertIndex(zsetEntry{member, score})
		return false
	}
	z.scores[member] = score
	z.insertIndex(zsetEntry{member, score})
	return true
}

func (z *SortedSet) Remove(member string) bool {
	score, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.removeFromIndex(zsetEntry{member, score})
	return true
}

func (z *SortedSet) insertIndex(e zsetEntry) {
	i := sort.Search(len(z.index), func(i int) bool { return !zsetLess(z.index[i], e) })
	z.index = append(z.index, zsetEntry{})
	copy(z.index[i+1:], z.index[i:])
	z.index[i] = e
}

func (z *SortedSet) removeFromIndex(e zsetEntry) {
	i := sort.Search(len(z.index), func(i int) bool { return !zsetLess(z.index[i], e) })
	for i < len(z.index) && z.index[i].member != e.member {
		i++
	}
	if i >= len(z.index) {
		return
	}
	z.index = append(z.index[:i], z.index[i+1:]...)
}

// Rank returns member's 0-based rank in ascending score order, ok=false if
// absent.
func (z *SortedSet) Rank(member string) (int, bool) {
	score, ok := z.scores[member]
	if !ok {
		return 0, false
	}
	target := zsetEntry{member, score}
	i := sort.Search(len(z.index), func(i int) bool { return !zsetLess(z.index[i], target) })
	for i < len(z.index) && z.index[i].member != member {
		i++
	}
	if i >= len(z.index) {
		return 0, false
	}
	return i, true
}

func (z *SortedSet) normRank(start, end int) (int, int) {
	n := len(z.index)
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || n == 0 || start >= n {
		return 0, 0
	}
	return start, end + 1
}

// RangeByRank returns (member, score) pairs for ranks [start, end]
// inclusive, negative indices counting from the highest rank.
func (z *SortedSet) RangeByRank(start, end int) []zsetEntry {
	lo, hi := z.normRank(start, end)
	if lo >= hi {
		return nil
	}
	out := make([]zsetEntry, hi-lo)
	copy(out, z.index[lo:hi])
	return out
}

// RangeByScore returns entries with min <= score <= max, inclusivity
// controlled by exclusiveMin/exclusiveMax.
func (z *SortedSet) RangeByScore(min, max float64, exclusiveMin, exclusiveMax bool) []zsetEntry {
	var out []zsetEntry
	for _, e := range z.index {
		if e.score < min || (exclusiveMin && e.score == min) {
			continue
		}
		if e.score > max || (exclusiveMax && e.score == max) {
			break
		}
		out = append(out, e)
	}
	return out
}

// --- Keyspace-level sorted set operations ------------------------------

func (k *Keyspace) zsetEntryFor(key string, createIfMissing bool) (*entry, error) {
	e, err := k.typeCheck(key, TypeSortedSet)
	if err != nil {
		return nil, err
	}
	if e == nil && createIfMissing {
		e = &entry{typ: TypeSortedSet, zset: NewSortedSet()}
		k.data[key] = e
		k.obs.DataAdded(key)
	}
	return e, nil
}

// ZMember is a (member, score) pair for result sets.
type ZMember struct {
	Member string
	Score  float64
}

// ZAdd adds or updates members, returning how many were newly inserted.
func (k *Keyspace) ZAdd(key string, members []ZMember) (int, error) {
	e, err := k.zsetEntryFor(key, true)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, m := range members {
		if e.zset.Add(m.Member, m.Score) {
			added++
		}
	}
	k.obs.KeyModified(key)
	return added, nil
}

func (k *Keyspace) ZRem(key string, members []string) (int, error) {
	e, err := k.zsetEntryFor(key, false)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	removed := 0
	for _, m := range members {
		if e.zset.Remove(m) {
			removed++
		}
	}
	if removed > 0 {
		k.obs.KeyModified(key)
	}
	if e.zset.Card() == 0 {
		delete(k.data, key)
		k.obs.DataRemoved(key)
	}
	return removed, nil
}

func (k *Keyspace) ZScore(key, member string) (float64, bool, error) {
	e, err := k.zsetEntryFor(key, false)
	if err != nil {
		return 0, false, err
	}
	if e == nil {
		return 0, false, nil
	}
	s, ok := e.zset.Score(member)
	return s, ok, nil
}

func (k *Keyspace) ZRank(key, member string) (int, bool, error) {
	e, err := k.zsetEntryFor(key, false)
	if err != nil {
		return 0, false, err
	}
	if e == nil {
		return 0, false, nil
	}
	r, ok := e.zset.Rank(member)
	return r, ok, nil
}

func (k *Keyspace) ZCard(key string) (int, error) {
	e, err := k.zsetEntryFor(key, false)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return e.zset.Card(), nil
}

func (k *Keyspace) ZRange(key string, start, end int) ([]ZMember, error) {
	e, err := k.zsetEntryFor(key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	raw := e.zset.RangeByRank(start, end)
	out := make([]ZMember, len(raw))
	for i, r := range raw {
		out[i] = ZMember{Member: r.member, Score: r.score}
	}
	return out, nil
}
