// Package syncclient keeps a local copy of a live session in step with the
// server. Every room signal and every poll tick triggers a full refetch that
// replaces the local view wholesale; the poll bounds staleness when signals
// are lost, and reconnects re-join the room and refetch immediately.
package syncclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"quiz-session-service/internal/domain"
)

const DefaultPollInterval = 5 * time.Second

// Fetcher reads the authoritative session snapshot.
type Fetcher interface {
	FetchSession(ctx context.Context, sessionID string) (domain.SessionView, error)
}

type Syncer struct {
	sessionID    string
	fetcher      Fetcher
	source       SignalSource
	pollInterval time.Duration
	newBackOff   func() backoff.BackOff
	onChange     func(domain.SessionView)
	logger       *slog.Logger

	mu      sync.RWMutex
	view    domain.SessionView
	fetched bool
}

type SyncerOption func(*Syncer)

func WithPollInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithOnChange is called after every successful fetch with the new view.
func WithOnChange(fn func(domain.SessionView)) SyncerOption {
	return func(s *Syncer) { s.onChange = fn }
}

// WithBackOff sets the reconnect policy.
func WithBackOff(newBackOff func() backoff.BackOff) SyncerOption {
	return func(s *Syncer) { s.newBackOff = newBackOff }
}

func WithLogger(logger *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSyncer follows sessionID. source may be nil, leaving only the poll.
func NewSyncer(sessionID string, fetcher Fetcher, source SignalSource, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		sessionID:    sessionID,
		fetcher:      fetcher,
		source:       source,
		pollInterval: DefaultPollInterval,
		newBackOff:   defaultBackOff,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// View returns the last fetched snapshot; ok is false before the first fetch.
func (s *Syncer) View() (view domain.SessionView, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.fetched
}

// Run syncs until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	triggers := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)
	if s.source != nil {
		g.Go(func() error {
			s.listen(ctx, triggers)
			return nil
		})
	}
	g.Go(func() error {
		s.refresh(ctx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.refresh(ctx)
			case <-triggers:
				s.refresh(ctx)
			}
		}
	})
	return g.Wait()
}

// listen keeps a room connection open, forwarding signals as fetch triggers.
func (s *Syncer) listen(ctx context.Context, triggers chan<- struct{}) {
	b := s.newBackOff()
	for {
		signals, err := s.source.Connect(ctx, s.sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("signal connect failed", "session_id", s.sessionID, "err", err)
		} else {
			b.Reset()
			trigger(triggers)
			for range signals {
				trigger(triggers)
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("signal connection dropped", "session_id", s.sessionID)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func trigger(triggers chan<- struct{}) {
	select {
	case triggers <- struct{}{}:
	default:
	}
}

func (s *Syncer) refresh(ctx context.Context) {
	view, err := s.fetcher.FetchSession(ctx, s.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("session fetch failed", "session_id", s.sessionID, "err", err)
		}
		return
	}
	s.mu.Lock()
	s.view = view
	s.fetched = true
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(view)
	}
}
