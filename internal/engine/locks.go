package engine

import "sync"

// SymbolLocks hands out one mutex per symbol so that at most one matching
// pass, admission or cancellation runs on a symbol at a time.
type SymbolLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewSymbolLocks creates an empty SymbolLocks.
func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the symbol's mutex, creating it on first use, and returns
// the function that releases it.
func (l *SymbolLocks) Lock(symbol string) (unlock func()) {
	mu := l.get(symbol)
	mu.Lock()
	return mu.Unlock
}

func (l *SymbolLocks) get(symbol string) *sync.Mutex {
	l.mu.RLock()
	mu, ok := l.locks[symbol]
	l.mu.RUnlock()
	if ok {
		return mu
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock.
	if mu, ok = l.locks[symbol]; ok {
		return mu
	}
	mu = &sync.Mutex{}
	l.locks[symbol] = mu
	return mu
}
