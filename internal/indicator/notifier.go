package indicator

import (
	"context"
	"strings"
	"sync"

	"github.com/rbright/herald/internal/hypr"
)

type notification struct {
	summary   string
	body      string
	timeoutMS int
	urgent    bool
}

type notifier interface {
	notify(context.Context, notification) error
	dismiss(context.Context) error
}

// desktopState remembers the replaceable notification ID so each update
// rewrites one popup instead of stacking new ones.
type desktopState struct {
	appName string

	mu sync.Mutex
	id uint32
}

type desktopNotifier struct {
	state *desktopState
}

func (d desktopNotifier) notify(ctx context.Context, n notification) error {
	d.state.mu.Lock()
	replaceID := d.state.id
	d.state.mu.Unlock()

	appName := strings.TrimSpace(d.state.appName)
	if appName == "" {
		appName = "herald"
	}
	urgency := urgencyNormal
	if n.urgent {
		urgency = urgencyCritical
	}

	id, err := desktopNotify(ctx, desktopRequest{
		appName:   appName,
		replaceID: replaceID,
		summary:   n.summary,
		body:      n.body,
		urgency:   urgency,
		timeoutMS: n.timeoutMS,
	})
	if err != nil {
		return err
	}

	d.state.mu.Lock()
	d.state.id = id
	d.state.mu.Unlock()
	return nil
}

func (d desktopNotifier) dismiss(ctx context.Context) error {
	d.state.mu.Lock()
	id := d.state.id
	d.state.id = 0
	d.state.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

type hyprNotifier struct{}

func (hyprNotifier) notify(ctx context.Context, n notification) error {
	icon, color := hypr.IconInfo, "rgb(89b4fa)"
	if n.urgent {
		icon, color = hypr.IconError, "rgb(f38ba8)"
	}
	text := n.summary
	if body := strings.TrimSpace(n.body); body != "" {
		text += " " + body
	}
	return hypr.Notify(ctx, icon, n.timeoutMS, color, text)
}

func (hyprNotifier) dismiss(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}
