// Package typing announces and renders the per-group "is typing" indicator.
//
// Every Announce schedules its own removal after the decay delay. A later
// Announce does not postpone an earlier removal, so under continuous typing the
// indicator may briefly disappear until the next keystroke re-adds it.
package typing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultDelay = 1600 * time.Millisecond

type Backend interface {
	StartTyping(ctx context.Context, groupID string) error
	StopTyping(ctx context.Context, groupID string) error
}

type Signal struct {
	backend Backend
	delay   time.Duration
	log     *zap.Logger

	mu     sync.Mutex
	timers map[*time.Timer]string
	closed bool
}

func NewSignal(backend Backend, delay time.Duration, logger *zap.Logger) *Signal {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Signal{
		backend: backend,
		delay:   delay,
		log:     logger,
		timers:  make(map[*time.Timer]string),
	}
}

// Announce adds the caller to the group's typing set and schedules removal.
func (s *Signal) Announce(ctx context.Context, groupID string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	if err := s.backend.StartTyping(ctx, groupID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var t *time.Timer
	t = time.AfterFunc(s.delay, func() { s.expire(t) })
	s.timers[t] = groupID
	return nil
}

// Pending reports scheduled removals that have not fired yet.
func (s *Signal) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Signal) expire(t *time.Timer) {
	s.mu.Lock()
	groupID, ok := s.timers[t]
	delete(s.timers, t)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.stop(groupID)
}

// Flush cancels pending timers and clears every group they referred to now.
func (s *Signal) Flush() {
	s.mu.Lock()
	groups := make(map[string]struct{})
	for t, groupID := range s.timers {
		t.Stop()
		groups[groupID] = struct{}{}
	}
	s.timers = make(map[*time.Timer]string)
	s.mu.Unlock()

	for groupID := range groups {
		s.stop(groupID)
	}
}

// Close flushes and ignores any later Announce.
func (s *Signal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
}

func (s *Signal) stop(groupID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.backend.StopTyping(ctx, groupID); err != nil {
		s.log.Debug("clear typing entry", zap.String("group_id", groupID), zap.Error(err))
	}
}

// Visible drops the local user from a group's typing set.
func Visible(entries []string, selfEmail string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.EqualFold(e, selfEmail) {
			out = append(out, e)
		}
	}
	return out
}

// Render formats the indicator line, or "" when nobody else is typing.
func Render(entries []string) string {
	switch len(entries) {
	case 0:
		return ""
	case 1:
		return entries[0] + " is typing…"
	default:
		return strings.Join(entries, ", ") + " are typing…"
	}
}
