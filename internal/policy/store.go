package policy

import "sync"

// MapStore is a ConfigStore over a plain map. The default store for tests
// and for options loaded from the service config file.
type MapStore struct {
	mu   sync.RWMutex
	opts map[string]string
}

func NewMapStore(opts map[string]string) *MapStore {
	cp := make(map[string]string, len(opts))
	for k, v := range opts {
		cp[k] = v
	}
	return &MapStore{opts: cp}
}

func (s *MapStore) Get(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.opts[key]; ok {
		return v
	}
	return def
}

// Set updates an option. Exposed for tests and the admin surface of the
// host; authentication attempts read a snapshot and are unaffected mid-flight.
func (s *MapStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts[key] = value
}
