// Package indicator renders assistant presence updates as desktop
// notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/herald/internal/assistant"
	"github.com/rbright/herald/internal/config"
	"github.com/rbright/herald/internal/presence"
)

const (
	updateBuffer      = 32
	persistentTimeout = 300000
	defaultErrorMS    = 4000
	dispatchTimeout   = 400 * time.Millisecond
)

// Indicator is one presentation surface subscribed to a Machine.
type Indicator struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	notifier notifier
	cue      func(context.Context, cueKind) error
	buffer   int

	mu       sync.Mutex
	last     presence.State
	noticeUp bool
	soundMu  sync.Mutex
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Indicator {
	var n notifier = desktopNotifier{state: &desktopState{appName: cfg.DesktopAppName}}
	if cfg.Backend == "hypr" {
		n = hyprNotifier{}
	}
	ind := &Indicator{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		notifier: n,
		buffer:   updateBuffer,
		last:     presence.StateIdle,
	}
	ind.cue = func(ctx context.Context, kind cueKind) error {
		return emitCue(ctx, kind, cfg)
	}
	return ind
}

// Attach subscribes the indicator to m and renders updates on a dedicated
// goroutine until ctx ends or the returned stop function is called. When the
// buffer overflows the loop discards what it holds and renders a fresh
// snapshot instead.
func (i *Indicator) Attach(ctx context.Context, m *assistant.Machine) (stop func()) {
	updates := make(chan assistant.Update, i.buffer)
	resync := make(chan struct{}, 1)
	unsubscribe := m.Subscribe(func(u assistant.Update) {
		select {
		case updates <- u:
		default:
			select {
			case resync <- struct{}{}:
			default:
			}
			i.log("indicator dropped update", "seq", u.Seq)
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var seen uint64
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				if u.Seq <= seen {
					continue
				}
				seen = u.Seq
				i.Render(ctx, u)
			case <-resync:
				drainUpdates(updates)
				snap := m.Snapshot()
				seen = snap.Seq
				i.Render(ctx, assistant.Update{Seq: snap.Seq, Snapshot: snap})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			cancel()
			<-done
		})
	}
}

func drainUpdates(updates <-chan assistant.Update) {
	for {
		select {
		case <-updates:
		default:
			return
		}
	}
}

// Render applies one update. Notices take precedence over state changes and
// stay visible until their own timeout.
func (i *Indicator) Render(ctx context.Context, u assistant.Update) {
	state := u.Snapshot.State

	i.mu.Lock()
	prev := i.last
	i.last = state
	if u.Notice != nil {
		i.noticeUp = true
	} else if state != prev && state != presence.StateIdle {
		i.noticeUp = false
	}
	noticeUp := i.noticeUp
	i.mu.Unlock()

	if u.Notice != nil {
		i.playCue(ctx, cueError)
		i.show(ctx, notification{
			summary:   u.Notice.Title,
			body:      u.Notice.Text,
			timeoutMS: i.errorTimeout(),
			urgent:    true,
		})
		return
	}
	if state == prev {
		return
	}

	switch state {
	case presence.StateListening:
		i.playCue(ctx, cueStart)
		i.show(ctx, notification{summary: state.Label(), body: i.messages.listening, timeoutMS: persistentTimeout})
	case presence.StateThinking:
		i.playCue(ctx, cueStop)
		i.show(ctx, notification{summary: state.Label(), body: i.messages.thinking, timeoutMS: persistentTimeout})
	case presence.StateSpeaking:
		i.playCue(ctx, cueComplete)
		body := u.Reply
		if body == "" {
			body = lastAssistantText(u.Snapshot.Messages)
		}
		i.show(ctx, notification{summary: state.Label(), body: body, timeoutMS: persistentTimeout})
	case presence.StateIdle:
		if prev == presence.StateListening {
			i.playCue(ctx, cueCancel)
		}
		if !noticeUp {
			i.hide(ctx)
		}
	}
}

func (i *Indicator) show(ctx context.Context, n notification) {
	if !i.cfg.Enable {
		return
	}
	i.run(ctx, func(ctx context.Context) error { return i.notifier.notify(ctx, n) })
}

func (i *Indicator) hide(ctx context.Context) {
	if !i.cfg.Enable {
		return
	}
	i.run(ctx, i.notifier.dismiss)
}

func (i *Indicator) errorTimeout() int {
	if i.cfg.ErrorTimeoutMS <= 0 {
		return defaultErrorMS
	}
	return i.cfg.ErrorTimeoutMS
}

// run executes a notifier operation with a bounded timeout.
func (i *Indicator) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		i.log("indicator dispatch failed", "error", err.Error())
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (i *Indicator) playCue(ctx context.Context, kind cueKind) {
	if !i.cfg.SoundEnable || i.cue == nil {
		return
	}
	go func() {
		i.soundMu.Lock()
		defer i.soundMu.Unlock()
		if err := i.cue(context.WithoutCancel(ctx), kind); err != nil {
			i.log("indicator audio cue failed", "error", err.Error())
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (i *Indicator) log(message string, args ...any) {
	if i.logger == nil {
		return
	}
	i.logger.Debug(message, args...)
}

func lastAssistantText(messages []assistant.Message) string {
	for idx := len(messages) - 1; idx >= 0; idx-- {
		if messages[idx].Origin == assistant.OriginAssistant {
			return messages[idx].Text
		}
	}
	return ""
}
