// Package ipc carries control commands and presentation updates over a unix
// socket as newline-delimited JSON.
package ipc

import "time"

// Request is one client command. Arg carries the operand of commands such as
// endpoint.
type Request struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
}

// Message is the wire form of one conversation log entry.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Origin    string    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Notice is the wire form of a user-visible failure.
type Notice struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

// Response answers a Request. Streaming commands emit one Response per update.
type Response struct {
	OK        bool      `json:"ok"`
	Seq       uint64    `json:"seq,omitempty"`
	State     string    `json:"state,omitempty"`
	Label     string    `json:"label,omitempty"`
	Disabled  bool      `json:"disabled,omitempty"`
	Accepting bool      `json:"accepting,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	Reply     string    `json:"reply,omitempty"`
	Notice    *Notice   `json:"notice,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
