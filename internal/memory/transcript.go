// Package memory keeps the chat transcript that gives the stateless remote
// chat endpoint continuity across tool calls.
//
// The transcript lives for the lifetime of the process. It is never
// persisted, windowed or truncated: every chat call sends all of it.
package memory

import (
	"sync"

	"github.com/windlant/kobold-mcp-server/internal/protocol"
)

// Transcript is the ordered chat history owned by one server instance.
type Transcript struct {
	mu      sync.Mutex
	history []protocol.Message
}

func NewTranscript() *Transcript {
	return &Transcript{history: make([]protocol.Message, 0)}
}

// Exchange is one chat round in progress. It holds the transcript lock from
// Begin until Commit or Abort, so rounds never interleave.
type Exchange struct {
	t      *Transcript
	staged []protocol.Message
	done   bool
}

// Begin locks the transcript and stages msgs for the next round.
// The caller must finish the exchange with Commit or Abort.
func (t *Transcript) Begin(msgs []protocol.Message) *Exchange {
	t.mu.Lock()
	staged := make([]protocol.Message, len(msgs))
	copy(staged, msgs)
	return &Exchange{t: t, staged: staged}
}

// Turns returns the history followed by the staged messages: what gets sent.
func (e *Exchange) Turns() []protocol.Message {
	out := make([]protocol.Message, 0, len(e.t.history)+len(e.staged))
	out = append(out, e.t.history...)
	return append(out, e.staged...)
}

// Commit appends the staged messages and, if non-nil, the reply, then unlocks.
func (e *Exchange) Commit(reply *protocol.Message) {
	if e.done {
		return
	}
	e.t.history = append(e.t.history, e.staged...)
	if reply != nil {
		e.t.history = append(e.t.history, *reply)
	}
	e.finish()
}

// Abort drops the staged messages and unlocks, leaving the history untouched.
func (e *Exchange) Abort() {
	if e.done {
		return
	}
	e.finish()
}

func (e *Exchange) finish() {
	e.done = true
	e.staged = nil
	e.t.mu.Unlock()
}

// Snapshot returns a copy of the committed history.
func (t *Transcript) Snapshot() []protocol.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Message, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}
