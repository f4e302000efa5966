package dialogue

import "sync"

// partyLocks serializes dialogue turns per party. Turns for different
// parties proceed concurrently; two turns for the same party never overlap,
// so they cannot observe each other's half-written session state.
type partyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPartyLocks() *partyLocks {
	return &partyLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for partyID, creating it on first use.
// Lock entries are kept for the process lifetime; the per-party footprint
// is one mutex.
func (p *partyLocks) acquire(partyID string) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[partyID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[partyID] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l
}
