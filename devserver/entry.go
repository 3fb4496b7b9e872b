package devserver

import "sync"

type recordedEvent struct {
	name string
	data string
}

// entry is the recorded outcome of one request_id. Readers wait on changed,
// which is closed and replaced on every append.
type entry struct {
	mu      sync.Mutex
	events  []recordedEvent
	done    bool
	changed chan struct{}
}

func newEntry() *entry {
	return &entry{changed: make(chan struct{})}
}

func (e *entry) append(name, data string, final bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.events = append(e.events, recordedEvent{name: name, data: data})
	e.done = final
	close(e.changed)
	e.changed = make(chan struct{})
}

// since returns the events from index i on, whether the entry is complete,
// and a channel closed on the next change.
func (e *entry) since(i int) ([]recordedEvent, bool, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recordedEvent
	if i < len(e.events) {
		out = append(out, e.events[i:]...)
	}
	return out, e.done, e.changed
}
