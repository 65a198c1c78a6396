package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/s/lifelessons/internal/logger"
)

// Memory keeps entries in process. It is the default backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e.Data = append([]byte(nil), e.Data...)
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	e.Data = append([]byte(nil), e.Data...)
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Sweep drops entries not written for longer than maxAge and returns how
// many were removed.
func (m *Memory) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor sweeps the store every interval until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context, log *logger.Logger, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(maxAge); n > 0 {
					log.Debug("query cache swept", "removed", n)
				}
			}
		}
	}()
}
