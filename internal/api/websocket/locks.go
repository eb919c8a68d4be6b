package websocket

import "sync"

// documentLocks hands out one mutex per document id. Holding the document's
// mutex for the whole of an operation apply (and for the batch drain) is the
// single-writer discipline the correctness of the processor rests on.
type documentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given document, creating it on first use,
// and returns the unlock function
func (d *documentLocks) Lock(docID string) func() {
	d.mu.Lock()
	l, ok := d.locks[docID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[docID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
