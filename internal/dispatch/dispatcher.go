// Package dispatch turns one tool invocation into exactly one request to the
// KoboldCpp server.
//
// Flow:
//
//	lookup -> split apiUrl -> validate (POST only) -> [merge transcript] -> HTTP -> passthrough
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/windlant/kobold-mcp-server/internal/kobold"
	"github.com/windlant/kobold-mcp-server/internal/memory"
	"github.com/windlant/kobold-mcp-server/internal/protocol"
	"github.com/windlant/kobold-mcp-server/internal/tools"
	"github.com/windlant/kobold-mcp-server/internal/tools/registry"
)

// Options configures a Dispatcher. Zero values fall back to defaults.
type Options struct {
	// BaseURL is used when a call carries no apiUrl. Defaults to tools.DefaultAPIURL.
	BaseURL string
	Logger  *log.Logger
	Verbose bool
}

type Dispatcher struct {
	reg        *registry.Registry
	client     *kobold.Client
	transcript *memory.Transcript
	baseURL    string
	logger     *log.Logger
	verbose    bool
}

var _ tools.ToolClient = (*Dispatcher)(nil)

func New(reg *registry.Registry, client *kobold.Client, transcript *memory.Transcript, opts Options) *Dispatcher {
	if opts.BaseURL == "" {
		opts.BaseURL = tools.DefaultAPIURL
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{
		reg:        reg,
		client:     client,
		transcript: transcript,
		baseURL:    opts.BaseURL,
		logger:     opts.Logger,
		verbose:    opts.Verbose,
	}
}

// List returns the exposed tool definitions in catalog order.
func (d *Dispatcher) List() []tools.ToolDefinition {
	return d.reg.ListAll()
}

// Call implements tools.ToolClient.
func (d *Dispatcher) Call(ctx context.Context, name string, args tools.ToolArguments) (json.RawMessage, error) {
	return d.Invoke(ctx, name, args)
}

// Invoke runs one tool. It returns either the remote JSON body or a *Error, never both.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args tools.ToolArguments) (resp json.RawMessage, err error) {
	start := time.Now()
	method, url := "-", "-"
	if d.verbose {
		defer func() {
			outcome := "ok"
			if err != nil {
				outcome = err.Error()
			}
			d.logger.Printf("%s %s %s (%s): %s", name, method, url, time.Since(start).Round(time.Millisecond), outcome)
		}()
	}

	def, ok := d.reg.Get(name)
	if !ok {
		return nil, &Error{Kind: KindUnknownTool, Tool: name, Message: "tool not found"}
	}
	method = def.Method

	base, payload, err := d.splitTarget(def, args)
	if err != nil {
		return nil, err
	}
	url = kobold.JoinURL(base, def.Endpoint)

	if def.HasBody() {
		if err := tools.Validate(payload, def.InputSchema); err != nil {
			return nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: err.Error(), Err: err}
		}
	}

	if def.ID == tools.ChatTool {
		return d.chat(ctx, def, url, payload)
	}
	return d.forward(ctx, def, url, payload)
}

// splitTarget removes apiUrl from args. The rest becomes the request payload.
func (d *Dispatcher) splitTarget(def tools.ToolDefinition, args tools.ToolArguments) (string, tools.ToolArguments, error) {
	base := d.baseURL
	payload := make(tools.ToolArguments, len(args))
	for k, v := range args {
		if k == tools.APIURLField {
			continue
		}
		payload[k] = v
	}

	raw, ok := args[tools.APIURLField]
	if !ok || raw == nil {
		return base, payload, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: fmt.Sprintf("%s: expected string", tools.APIURLField)}
	}
	if s != "" {
		base = s
	}
	return base, payload, nil
}

func (d *Dispatcher) forward(ctx context.Context, def tools.ToolDefinition, url string, payload tools.ToolArguments) (json.RawMessage, error) {
	var body []byte
	if def.HasBody() {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: err.Error(), Err: err}
		}
		body = b
	}
	return d.send(ctx, def, url, body)
}

// chat sends the whole transcript plus the new messages, and remembers the
// assistant reply. A failed round leaves the transcript as it was.
func (d *Dispatcher) chat(ctx context.Context, def tools.ToolDefinition, url string, payload tools.ToolArguments) (json.RawMessage, error) {
	msgs, err := decodeMessages(payload["messages"])
	if err != nil {
		return nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: err.Error(), Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: err.Error(), Err: err}
	}

	ex := d.transcript.Begin(msgs)
	body, err = sjson.SetBytes(body, "messages", ex.Turns())
	if err != nil {
		ex.Abort()
		return nil, &Error{Kind: KindInvalidArguments, Tool: def.Name, Message: err.Error(), Err: err}
	}

	resp, err := d.send(ctx, def, url, body)
	if err != nil {
		ex.Abort()
		return nil, err
	}
	ex.Commit(assistantReply(resp))
	return resp, nil
}

func (d *Dispatcher) send(ctx context.Context, def tools.ToolDefinition, url string, body []byte) (json.RawMessage, error) {
	resp, err := d.client.Do(ctx, def.Method, url, body)
	if err == nil {
		return resp, nil
	}
	var se *kobold.StatusError
	if errors.As(err, &se) {
		return nil, &Error{Kind: KindUpstream, Tool: def.Name, Message: se.Status, Err: err}
	}
	return nil, &Error{Kind: KindUpstream, Tool: def.Name, Message: err.Error(), Err: err}
}

func decodeMessages(v interface{}) ([]protocol.Message, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var msgs []protocol.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	return msgs, nil
}

// assistantReply extracts choices[0].message from a chat completion response.
// Fields beyond role and content (tool_calls, reasoning_content) are kept.
func assistantReply(resp json.RawMessage) *protocol.Message {
	msg := gjson.GetBytes(resp, "choices.0.message")
	if !msg.Exists() || !msg.IsObject() {
		return nil
	}
	var reply protocol.Message
	if err := json.Unmarshal([]byte(msg.Raw), &reply); err != nil {
		return nil
	}
	if reply.Role != "" && reply.Role != protocol.RoleAssistant {
		return nil
	}
	reply.Role = protocol.RoleAssistant
	return &reply
}
