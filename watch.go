package entcache

import "sync"

type EventKind uint8

const (
	EventReplaced EventKind = iota + 1
	EventEvicted
)

func (k EventKind) String() string {
	switch k {
	case EventReplaced:
		return "replaced"
	case EventEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event is delivered to watchers of a Ref. Snapshot is nil on eviction and a
// private copy otherwise.
type Event struct {
	Ref      Ref
	Kind     EventKind
	Snapshot Snapshot
}

type watcher struct {
	id uint64
	fn func(Event)
}

type watchers struct {
	mu   sync.Mutex
	next uint64
	byID map[Ref][]watcher
}

func newWatchers() *watchers {
	return &watchers{byID: make(map[Ref][]watcher)}
}

func (w *watchers) add(ref Ref, fn func(Event)) func() {
	w.mu.Lock()
	w.next++
	id := w.next
	w.byID[ref] = append(w.byID[ref], watcher{id: id, fn: fn})
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { w.remove(ref, id) })
	}
}

func (w *watchers) remove(ref Ref, id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := w.byID[ref]
	for i, it := range list {
		if it.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.byID, ref)
		return
	}
	w.byID[ref] = list
}

// publish copies the subscriber list so callbacks may unsubscribe themselves.
func (w *watchers) publish(ev Event) {
	w.mu.Lock()
	list := append([]watcher(nil), w.byID[ev.Ref]...)
	w.mu.Unlock()
	for _, it := range list {
		e := ev
		e.Snapshot = ev.Snapshot.Clone()
		it.fn(e)
	}
}
