// Package output hands assistant replies to external commands: a speech
// command whose exit ends the Speaking phase, and an optional clipboard copy.
package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/herald/internal/assistant"
	"github.com/rbright/herald/internal/config"
	"github.com/rbright/herald/internal/presence"
)

const clipboardTimeout = 2 * time.Second

// Speaker renders replies through the configured output commands.
type Speaker struct {
	cfg    config.OutputConfig
	logger *slog.Logger
	run    func(context.Context, []string, string) error

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	jobs   sync.WaitGroup
}

// NewSpeaker constructs a reply speaker from runtime config.
func NewSpeaker(cfg config.OutputConfig, logger *slog.Logger) *Speaker {
	return &Speaker{cfg: cfg, logger: logger, run: runCommandWithInput}
}

// Enabled reports whether any output command is configured.
func (s *Speaker) Enabled() bool {
	return !s.cfg.Speak.Empty() || !s.cfg.Clipboard.Empty()
}

// Attach subscribes to m. While a speech command presents a reply the
// Speaking phase is held, and the command's exit calls FinishSpeaking. Leaving
// Speaking any other way interrupts speech still in progress.
func (s *Speaker) Attach(ctx context.Context, m *assistant.Machine) (stop func()) {
	unsubscribe := m.Subscribe(func(u assistant.Update) {
		if s.speaks(u) {
			m.HoldSpeaking()
		}
		s.Handle(ctx, u, m.FinishSpeaking)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			s.interrupt()
			s.jobs.Wait()
		})
	}
}

// Handle reacts to one update without blocking the caller.
func (s *Speaker) Handle(ctx context.Context, u assistant.Update, finish func() bool) {
	switch u.Snapshot.State {
	case presence.StateSpeaking:
		if u.Reply != "" {
			s.copyReply(ctx, u.Reply)
			s.say(ctx, u.Reply, finish)
		}
	case presence.StateListening, presence.StateIdle:
		s.interrupt()
	}
}

func (s *Speaker) speaks(u assistant.Update) bool {
	return !s.cfg.Speak.Empty() && u.Snapshot.State == presence.StateSpeaking && u.Reply != ""
}

// Wait blocks until every launched command has exited.
func (s *Speaker) Wait() {
	s.jobs.Wait()
}

func (s *Speaker) copyReply(ctx context.Context, reply string) {
	if s.cfg.Clipboard.Empty() {
		return
	}
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		runCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
		defer cancel()
		if err := s.run(runCtx, s.cfg.Clipboard.Argv, reply); err != nil {
			s.logError("copy reply to clipboard failed", err)
		}
	}()
}

func (s *Speaker) say(ctx context.Context, reply string, finish func() bool) {
	if s.cfg.Speak.Empty() {
		return
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer cancel()

		err := s.run(runCtx, s.cfg.Speak.Argv, reply)
		interrupted := runCtx.Err() != nil

		s.mu.Lock()
		current := s.gen == gen
		if current {
			s.cancel = nil
		}
		s.mu.Unlock()

		if interrupted {
			return
		}
		if err != nil {
			s.logError("speak command failed", err)
		}
		if current && finish != nil {
			finish()
		}
	}()
}

func (s *Speaker) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *Speaker) logError(message string, err error) {
	if s.logger == nil || err == nil {
		return
	}
	s.logger.Error(message, "error", err.Error())
}
