// Package cache stores encoded reports between requests. Reports for a
// period are deterministic functions of the entry store, so a cached body is
// valid until its TTL runs out.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spese-report/internal/log"
)

// Store keeps opaque encoded values by key.
type Store interface {
	// Get returns ok=false on a miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate drops every key beginning with prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// ReportKey builds the key of one report body.
func ReportKey(userID, granularity, value string) string {
	return strings.Join([]string{"report", userID, granularity, value}, ":")
}

// UserPrefix matches every cached report of userID.
func UserPrefix(userID string) string {
	return "report:" + userID + ":"
}

// InvalidateUsers drops the cached reports of every listed user. Reseeding
// changes the entries a report is computed from, so stale bodies must go.
func InvalidateUsers(ctx context.Context, s Store, userIDs []string) error {
	for _, id := range userIDs {
		if err := s.Invalidate(ctx, UserPrefix(id)); err != nil {
			return fmt.Errorf("invalidate reports of %s: %w", id, err)
		}
	}
	return nil
}

// Cleaner is implemented by caches that can drop expired entries on demand.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps expired entries from registered caches.
type Manager struct {
	caches      []Cleaner
	logger      *log.Logger
	started     bool
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup sweeps every interval until Stop is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("expired cache entries removed", "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup goroutine started by StartCleanup.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
	}
	close(m.stopCleanup)
	if m.started {
		<-m.cleanupDone
	}
}
