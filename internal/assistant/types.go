package assistant

import (
	"time"

	"github.com/rbright/herald/internal/presence"
)

// Origin identifies who authored a message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Mode selects how replies are surfaced.
type Mode string

const (
	// ModeChat appends each completed turn to the message log.
	ModeChat Mode = "chat"
	// ModeOrb only publishes the reply; the log stays empty.
	ModeOrb Mode = "orb"
)

// ParseMode maps a config value to a Mode, defaulting to chat.
func ParseMode(raw string) Mode {
	if Mode(raw) == ModeOrb {
		return ModeOrb
	}
	return ModeChat
}

// Message is one immutable entry in the conversation log.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the read-only projection handed to presentation surfaces.
type Snapshot struct {
	Seq       uint64         `json:"seq"`
	State     presence.State `json:"state"`
	Disabled  bool           `json:"disabled"`
	Accepting bool           `json:"accepting"`
	Endpoint  string         `json:"endpoint"`
	Mode      Mode           `json:"mode"`
	Messages  []Message      `json:"messages"`
}

// Update is delivered to subscribers once per mutation, in mutation order.
type Update struct {
	Seq      uint64   `json:"seq"`
	Snapshot Snapshot `json:"snapshot"`
	Reply    string   `json:"reply,omitempty"`
	Notice   *Notice  `json:"notice,omitempty"`
}

// TurnResult describes one completed StopCapture call.
type TurnResult struct {
	State             presence.State
	Transcript        string
	Reply             string
	Err               error
	BytesCaptured     int64
	AudioDuration     time.Duration
	TranscribeLatency time.Duration
	DispatchLatency   time.Duration
	StartedAt         time.Time
	FinishedAt        time.Time
}
