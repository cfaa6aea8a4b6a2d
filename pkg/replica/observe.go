package replica

import (
	"reflect"
	"sort"
	"sync"
)

// Subscription is returned by every Observe call. Unsubscribe stops further
// callbacks; it is safe to call more than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the observer.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// MapEvent describes the keys of a map changed by one transaction.
type MapEvent struct {
	Target *Map

	// Keys lists changed keys in the order they were first touched.
	Keys []string
}

// MapObserver receives change events of a single map.
type MapObserver func(txn *TxnMut, event *MapEvent)

// ArrayEvent summarizes the changes to an array made by one transaction.
type ArrayEvent struct {
	Target   *Array
	Inserted int
	Deleted  int
}

// ArrayObserver receives change events of a single array.
type ArrayObserver func(txn *TxnMut, event *ArrayEvent)

type observerEntry[F any] struct {
	id uint64
	f  F
}

// observers keeps callbacks in registration order.
type observers[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observerEntry[F]
}

func newObservers[F any]() *observers[F] {
	return &observers[F]{}
}

func (o *observers[F]) add(f F) *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.entries = append(o.entries, observerEntry[F]{id: id, f: f})

	return &Subscription{cancel: func() { o.remove(id) }}
}

func (o *observers[F]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
			return
		}
	}
}

// snapshot copies the callbacks so they can run without holding the lock.
func (o *observers[F]) snapshot() []F {
	o.mu.Lock()
	defer o.mu.Unlock()

	fs := make([]F, len(o.entries))
	for i, e := range o.entries {
		fs[i] = e.f
	}
	return fs
}

func (o *observers[F]) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// observedState is the content of observed containers before an update is
// integrated.
type observedState struct {
	maps   map[*Map]map[string]any
	arrays map[*Array][]any
}

func (d *Doc) snapshotObserved() observedState {
	maps, arrays := d.observed()
	st := observedState{
		maps:   make(map[*Map]map[string]any, len(maps)),
		arrays: make(map[*Array][]any, len(arrays)),
	}
	for _, m := range maps {
		st.maps[m] = m.ToJSON(nil)
	}
	for _, a := range arrays {
		st.arrays[a] = a.ToJSON(nil)
	}
	return st
}

// diffObserved records events for observed containers that an integrated
// update changed.
func (t *TxnMut) diffObserved(before observedState) {
	for m, prev := range before.maps {
		cur := m.ToJSON(t)
		keys := make([]string, 0, len(prev)+len(cur))
		for k := range prev {
			keys = append(keys, k)
		}
		for k := range cur {
			if _, ok := prev[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			pv, inPrev := prev[k]
			cv, inCur := cur[k]
			if inPrev != inCur || !reflect.DeepEqual(pv, cv) {
				t.mapChanged(m, k)
			}
		}
	}

	for a, prev := range before.arrays {
		cur := a.ToJSON(t)
		lead := 0
		for lead < len(prev) && lead < len(cur) && reflect.DeepEqual(prev[lead], cur[lead]) {
			lead++
		}
		trail := 0
		for trail < len(prev)-lead && trail < len(cur)-lead &&
			reflect.DeepEqual(prev[len(prev)-1-trail], cur[len(cur)-1-trail]) {
			trail++
		}
		deleted := len(prev) - lead - trail
		inserted := len(cur) - lead - trail
		if deleted > 0 || inserted > 0 {
			t.arrayChanged(a, inserted, deleted)
		}
	}
}
