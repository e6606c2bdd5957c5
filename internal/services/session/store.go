// Package session keeps each browser session's analysis runs in memory.
//
// A run belongs to exactly one session and is only visible through that
// session's ID; asking for another session's run looks exactly like asking
// for a run that does not exist. Idle sessions are evicted by a background
// ticker after the configured TTL.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
)

// maxRunsPerSession bounds memory per session; the oldest finished runs
// are dropped first.
const maxRunsPerSession = 10

var (
	// ErrNotFound is returned for unknown runs and for runs owned by a
	// different session.
	ErrNotFound = errors.New("run not found")
	// ErrRunActive is returned when a session already has a run in flight.
	ErrRunActive = errors.New("an analysis is already running for this session")
)

// Store is the in-memory session and run registry.
type Store struct {
	// Go Pattern: sync.RWMutex lets many requests read runs at once while
	// the worker's progress updates take the exclusive lock.
	mu       sync.RWMutex
	sessions map[string]*session
	runs     map[string]*models.AnalysisRun
	subs     map[string][]chan models.ProgressEvent

	ttl  time.Duration
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type session struct {
	runIDs   []string // oldest first
	lastSeen time.Time
}

// NewStore creates a store and starts its cleanup goroutine. Call Close to
// stop it.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		runs:     make(map[string]*models.AnalysisRun),
		subs:     make(map[string][]chan models.ProgressEvent),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Touch records activity for a session, creating it if needed.
func (s *Store) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(sessionID)
}

func (s *Store) touchLocked(sessionID string) *session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = s.now()
	return sess
}

// CreateRun registers a new pending run for the session. It fails with
// ErrRunActive if the session already has a pending or running run.
func (s *Store) CreateRun(sessionID string, run *models.AnalysisRun) (*models.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.touchLocked(sessionID)
	for _, id := range sess.runIDs {
		if r, ok := s.runs[id]; ok && !r.Status.Terminal() {
			return nil, ErrRunActive
		}
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.SessionID = sessionID
	run.Status = models.RunPending
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}

	s.runs[run.ID] = run
	sess.runIDs = append(sess.runIDs, run.ID)
	s.trimLocked(sess)

	return clone(run), nil
}

// trimLocked drops the oldest finished runs beyond the per-session cap.
func (s *Store) trimLocked(sess *session) {
	for len(sess.runIDs) > maxRunsPerSession {
		dropped := false
		for i, id := range sess.runIDs {
			if r, ok := s.runs[id]; !ok || r.Status.Terminal() {
				delete(s.runs, id)
				sess.runIDs = append(sess.runIDs[:i], sess.runIDs[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}

// Get returns a snapshot of a run owned by sessionID.
func (s *Store) Get(sessionID, runID string) (*models.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok || run.SessionID != sessionID {
		return nil, ErrNotFound
	}
	return clone(run), nil
}

// Latest returns the session's most recent run, if any.
func (s *Store) Latest(sessionID string) (*models.AnalysisRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || len(sess.runIDs) == 0 {
		return nil, false
	}
	run, ok := s.runs[sess.runIDs[len(sess.runIDs)-1]]
	if !ok {
		return nil, false
	}
	return clone(run), true
}

// List returns snapshots of the session's runs, newest first.
func (s *Store) List(sessionID string) []*models.AnalysisRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*models.AnalysisRun, 0, len(sess.runIDs))
	for i := len(sess.runIDs) - 1; i >= 0; i-- {
		if run, ok := s.runs[sess.runIDs[i]]; ok {
			out = append(out, clone(run))
		}
	}
	return out
}

// Update applies fn to the stored run under the write lock and notifies
// subscribers. Subscriptions close once the run is terminal.
func (s *Store) Update(runID string, fn func(*models.AnalysisRun)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	fn(run)

	event := progressEvent(run)
	for _, ch := range s.subs[runID] {
		// Go Pattern: select with default keeps a slow websocket client
		// from blocking the worker. It just misses an intermediate event.
		select {
		case ch <- event:
		default:
		}
		if run.Status.Terminal() {
			close(ch)
		}
	}
	if run.Status.Terminal() {
		delete(s.subs, runID)
	}
	return nil
}

// Subscribe streams progress events for a run owned by sessionID. The
// current state is delivered first. The channel is closed when the run
// finishes; call cancel to stop listening early.
func (s *Store) Subscribe(sessionID, runID string) (<-chan models.ProgressEvent, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok || run.SessionID != sessionID {
		return nil, nil, ErrNotFound
	}

	ch := make(chan models.ProgressEvent, 16)
	ch <- progressEvent(run)
	if run.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	s.subs[runID] = append(s.subs[runID], ch)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[runID]
		for i, c := range subs {
			if c == ch {
				s.subs[runID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// cleanup periodically removes idle sessions to prevent memory leaks.
func (s *Store) cleanup() {
	interval := s.ttl / 4
	if interval <= 0 || interval > 10*time.Minute {
		interval = 10 * time.Minute
	}

	// Go Pattern: time.Ticker sends values at regular intervals.
	// Always defer ticker.Stop() to release resources.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.evictIdle(); n > 0 {
				log.Info().Int("evicted", n).Msg("🧹 Evicted idle sessions")
			}
		}
	}
}

// evictIdle drops sessions idle for longer than the TTL. Sessions with a
// run still in flight are kept.
func (s *Store) evictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.After(cutoff) {
			continue
		}
		active := false
		for _, runID := range sess.runIDs {
			if r, ok := s.runs[runID]; ok && !r.Status.Terminal() {
				active = true
				break
			}
		}
		if active {
			continue
		}
		for _, runID := range sess.runIDs {
			delete(s.runs, runID)
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted
}

func progressEvent(run *models.AnalysisRun) models.ProgressEvent {
	return models.ProgressEvent{
		RunID:    run.ID,
		Status:   run.Status,
		Progress: run.Progress,
		Stage:    run.Stage,
	}
}

// clone copies a run so callers can read it without holding the lock.
// Image bytes are shared; they are never modified after extraction.
func clone(run *models.AnalysisRun) *models.AnalysisRun {
	c := *run
	c.Images = append([]models.ExtractedImage(nil), run.Images...)
	c.Warnings = append([]string(nil), run.Warnings...)
	c.Settings.TargetMarkets = append([]string(nil), run.Settings.TargetMarkets...)
	if run.KindErrors != nil {
		c.KindErrors = make(map[models.AnalysisKind]string, len(run.KindErrors))
		for k, v := range run.KindErrors {
			c.KindErrors[k] = v
		}
	}
	c.Bundle = models.AnalysisBundle{}
	for k, v := range run.Bundle.Results {
		c.Bundle.Set(k, v)
	}
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
