package gateway

// fallback is a fixed-capacity FIFO that absorbs entries the primary
// queue rejected. Unlike a drop-oldest ring it never overwrites: a full
// buffer rejects the new entry so the caller can count the drop.
//
// push is safe from any goroutine and never blocks. peek and discard
// belong to the single consumer. No lock is shared between the two
// sides: slots is a counting semaphore over the capacity and items
// carries the entries, so an accepted push always has room in items.
type fallback struct {
	slots chan struct{}
	items chan Entry

	// held is the entry the consumer has peeked but not discarded. It
	// keeps its slot until discard.
	held *Entry
}

func newFallback(capacity int) *fallback {
	if capacity < 0 {
		capacity = 0
	}
	return &fallback{
		slots: make(chan struct{}, capacity),
		items: make(chan Entry, capacity),
	}
}

// push appends e, reporting false if the buffer is full.
func (f *fallback) push(e Entry) bool {
	select {
	case f.slots <- struct{}{}:
	default:
		return false
	}
	f.items <- e
	return true
}

// peek returns the oldest entry without removing it.
func (f *fallback) peek() (Entry, bool) {
	if f.held != nil {
		return *f.held, true
	}
	select {
	case e := <-f.items:
		f.held = &e
		return e, true
	default:
		return Entry{}, false
	}
}

// discard removes the oldest entry.
func (f *fallback) discard() {
	if f.held == nil {
		if _, ok := f.peek(); !ok {
			return
		}
	}
	f.held = nil
	<-f.slots
}

// len counts accepted entries not yet discarded.
func (f *fallback) len() int { return len(f.slots) }

func (f *fallback) capacity() int { return cap(f.slots) }
