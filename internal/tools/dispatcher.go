// Package tools declares the datasheet tools and dispatches calls to them.
//
// Every call, whatever happens inside the tool, produces a Result whose single
// text content is a JSON envelope {success, data?, message?}.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes a tool with its raw JSON arguments and returns the data
// to place in a success envelope.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named action with a declared input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     Handler         `json:"-"`

	validator *validator.Schema
}

// Envelope is the JSON document carried in every tool result.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Content is one item of a tool result.
type Content struct {
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// Result is what a tool call hands back to the transport.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// Text returns the envelope text of the result.
func (r Result) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Dispatcher holds the registered tools. Registration happens before
// serving; Call is safe for concurrent use afterwards.
type Dispatcher struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger

	// Observe, when set, is called once per finished call.
	Observe func(tool string, isError bool, elapsed time.Duration)
}

// NewDispatcher returns a dispatcher with no tools registered.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{tools: make(map[string]*Tool), logger: logger}
}

// Register adds a tool, compiling its input schema for argument validation.
func (d *Dispatcher) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.Handler == nil {
		return errors.Newf("tool %s has no handler", t.Name)
	}
	if _, exists := d.tools[t.Name]; exists {
		return errors.Newf("tool %s already registered", t.Name)
	}
	if len(t.InputSchema) == 0 {
		t.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	compiled, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return err
	}
	t.validator = compiled
	d.tools[t.Name] = &t
	d.order = append(d.order, t.Name)
	return nil
}

// Tools lists the registered tools in registration order.
func (d *Dispatcher) Tools() []Tool {
	out := make([]Tool, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, *d.tools[name])
	}
	return out
}

// Call runs the named tool. It never fails: every error, including a panic
// inside the tool, is reported as an error Result.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) (res Result) {
	requestID := uuid.New().String()
	started := time.Now()
	logger := d.logger.With("tool", name, "request_id", requestID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "panic", r)
			res = errorResult(fmt.Sprintf("internal error in %s", name))
		}
		if d.Observe != nil {
			d.Observe(name, res.IsError, time.Since(started))
		}
		logger.Debug("tool call finished", "is_error", res.IsError, "duration", time.Since(started))
	}()

	t, ok := d.tools[name]
	if !ok {
		logger.Warn("call to unknown tool")
		return errorResult("unknown tool: " + name)
	}

	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(t.validator, args); err != nil {
		logger.Info("tool arguments rejected", "error", err)
		return errorResult(err.Error())
	}

	data, err := t.Handler(ctx, args)
	if err != nil {
		logger.Warn("tool call failed", "error", err)
		return errorResult(errorMessage(err))
	}
	return successResult(data)
}

func successResult(data any) Result {
	buf, err := json.Marshal(Envelope{Success: true, Data: data})
	if err != nil {
		return errorResult("encoding result: " + err.Error())
	}
	return textResult(string(buf), false)
}

func errorResult(message string) Result {
	buf, _ := json.Marshal(Envelope{Success: false, Message: message})
	return textResult(string(buf), true)
}

func textResult(text string, isError bool) Result {
	return Result{
		Content: []Content{{Type: "text", MimeType: "application/json", Text: text}},
		IsError: isError,
	}
}
