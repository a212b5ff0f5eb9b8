// Package cache holds per-session snapshots of fetched Oura data so
// follow-up questions in a conversation don't re-query the Oura API.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/collinvine/talk-to-oura/internal/domain"
)

// DefaultTTL is how long a cached snapshot stays usable
const DefaultTTL = time.Hour

// Entry is one session's cached data snapshot. Entries are idempotent
// snapshots: last write wins, slightly stale reads are acceptable.
type Entry struct {
	StartDate     string
	EndDate       string
	Data          domain.HealthData
	IncludedTypes domain.DataTypes
	FetchedAt     time.Time
}

// Matches reports whether the entry can serve a request: its date range
// must be a superset of [start, end] and it must include every needed
// category. ISO dates are compared as strings, which preserves calendar
// order.
func (e *Entry) Matches(start, end string, needed domain.DataTypes) bool {
	if e.StartDate > start || e.EndDate < end {
		return false
	}
	return e.IncludedTypes.Covers(needed)
}

// Filter projects the cached payload down to [start, end] inclusive.
// Array categories filter on each record's day, heart-rate readings on
// the date portion of their timestamp, and daily stats on their map key.
func (e *Entry) Filter(start, end string) domain.HealthData {
	var out domain.HealthData

	for _, rec := range e.Data.Sleep {
		if rec.Day >= start && rec.Day <= end {
			out.Sleep = append(out.Sleep, rec)
		}
	}
	for _, rec := range e.Data.Activity {
		if rec.Day >= start && rec.Day <= end {
			out.Activity = append(out.Activity, rec)
		}
	}
	for _, rec := range e.Data.Readiness {
		if rec.Day >= start && rec.Day <= end {
			out.Readiness = append(out.Readiness, rec)
		}
	}

	if hr := e.Data.HeartRate; hr != nil {
		filtered := &domain.HeartRateData{DailyStats: map[string]domain.DailyHeartRateStats{}}
		for _, reading := range hr.Readings {
			day := readingDay(reading.Timestamp)
			if day >= start && day <= end {
				filtered.Readings = append(filtered.Readings, reading)
			}
		}
		for day, stats := range hr.DailyStats {
			if day >= start && day <= end {
				filtered.DailyStats[day] = stats
			}
		}
		if len(filtered.Readings) > 0 || len(filtered.DailyStats) > 0 {
			out.HeartRate = filtered
		}
	}

	return out
}

func readingDay(timestamp string) string {
	if i := strings.IndexAny(timestamp, "T "); i > 0 {
		return timestamp[:i]
	}
	return timestamp
}

// Store keeps one Entry per session, evicted after a TTL both lazily on
// read and by a periodic background sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore creates a store with the given TTL (DefaultTTL if <= 0)
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Get returns the session's entry, treating an expired entry as absent
// and deleting it on the way out.
func (s *Store) Get(sessionID string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.FetchedAt) > s.ttl {
		delete(s.entries, sessionID)
		return nil, false
	}
	return entry, true
}

// Set stores a fresh snapshot for the session, replacing any prior entry
func (s *Store) Set(sessionID string, start, end string, data domain.HealthData, types domain.DataTypes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sessionID] = &Entry{
		StartDate:     start,
		EndDate:       end,
		Data:          data,
		IncludedTypes: types,
		FetchedAt:     s.now(),
	}
}

// Clear removes the session's entry
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}

// Sweep removes every expired entry and returns how many were removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, entry := range s.entries {
		if now.Sub(entry.FetchedAt) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweep runs Sweep every interval until Stop is called. Best-effort
// maintenance only; lazy eviction in Get keeps correctness without it.
func (s *Store) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the background sweep. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Len reports the number of live entries (expired ones included until
// swept or read).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
