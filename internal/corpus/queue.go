package corpus

import "container/list"

// mruQueue keeps keys in most-recently-inserted-first order with O(1)
// membership, push-front and removal.
type mruQueue struct {
	order *list.List
	index map[string]*list.Element
}

func newMRUQueue() *mruQueue {
	return &mruQueue{order: list.New(), index: make(map[string]*list.Element)}
}

// pushBack appends key. Used only while building the initial order.
func (q *mruQueue) pushBack(key string) {
	if _, ok := q.index[key]; ok {
		return
	}
	q.index[key] = q.order.PushBack(key)
}

// pushFront inserts key at the front. A key already present is left where
// it is.
func (q *mruQueue) pushFront(key string) bool {
	if _, ok := q.index[key]; ok {
		return false
	}
	q.index[key] = q.order.PushFront(key)
	return true
}

func (q *mruQueue) remove(key string) bool {
	e, ok := q.index[key]
	if !ok {
		return false
	}
	q.order.Remove(e)
	delete(q.index, key)
	return true
}

func (q *mruQueue) contains(key string) bool {
	_, ok := q.index[key]
	return ok
}

func (q *mruQueue) len() int {
	return q.order.Len()
}

// slice copies keys [from, to) in queue order.
func (q *mruQueue) slice(from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > q.order.Len() {
		to = q.order.Len()
	}
	if from >= to {
		return []string{}
	}
	out := make([]string, 0, to-from)
	i := 0
	for e := q.order.Front(); e != nil && i < to; e = e.Next() {
		if i >= from {
			out = append(out, e.Value.(string))
		}
		i++
	}
	return out
}

// rankedSet is a subset of a fixed, ordered universe of keys. Members are
// always returned in universe order. A Fenwick tree over member flags gives
// O(log n) insert, remove and k-th member lookup.
type rankedSet struct {
	universe []string
	rank     map[string]int
	member   []bool
	tree     []int // 1-based Fenwick tree
	size     int
}

func newRankedSet(universe []string) *rankedSet {
	rank := make(map[string]int, len(universe))
	for i, k := range universe {
		rank[k] = i
	}
	return &rankedSet{
		universe: universe,
		rank:     rank,
		member:   make([]bool, len(universe)),
		tree:     make([]int, len(universe)+1),
	}
}

func (s *rankedSet) update(pos, delta int) {
	for i := pos + 1; i < len(s.tree); i += i & -i {
		s.tree[i] += delta
	}
}

// add inserts key. Keys outside the universe are ignored.
func (s *rankedSet) add(key string) bool {
	r, ok := s.rank[key]
	if !ok || s.member[r] {
		return false
	}
	s.member[r] = true
	s.update(r, 1)
	s.size++
	return true
}

func (s *rankedSet) remove(key string) bool {
	r, ok := s.rank[key]
	if !ok || !s.member[r] {
		return false
	}
	s.member[r] = false
	s.update(r, -1)
	s.size--
	return true
}

func (s *rankedSet) contains(key string) bool {
	r, ok := s.rank[key]
	return ok && s.member[r]
}

func (s *rankedSet) len() int {
	return s.size
}

// find returns the universe position of the k-th member (0-based).
func (s *rankedSet) find(k int) int {
	pos := 0
	step := 1
	for step*2 < len(s.tree) {
		step *= 2
	}
	remaining := k + 1
	for ; step > 0; step /= 2 {
		next := pos + step
		if next < len(s.tree) && s.tree[next] < remaining {
			pos = next
			remaining -= s.tree[next]
		}
	}
	return pos // 1-based index pos+1 maps to universe position pos
}

// slice copies members [from, to) in universe order.
func (s *rankedSet) slice(from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > s.size {
		to = s.size
	}
	if from >= to {
		return []string{}
	}
	out := make([]string, 0, to-from)
	for i := s.find(from); i < len(s.universe) && len(out) < to-from; i++ {
		if s.member[i] {
			out = append(out, s.universe[i])
		}
	}
	return out
}
