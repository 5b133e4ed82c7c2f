package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitable-mcp/internal/aitable"
)

type echoArgs struct {
	Word  string `json:"word" jsonschema:"required,minLength=1"`
	Times int    `json:"times,omitempty" jsonschema:"minimum=1,maximum=3"`
}

func TestGenerateSchema(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal(GenerateSchema[echoArgs](), &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"word"}, schema["required"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.NotContains(t, schema, "$schema")
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "integer", props["times"].(map[string]any)["type"])
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	d := NewDispatcher(nil)
	tool := Tool{
		Name:        "echo",
		InputSchema: GenerateSchema[echoArgs](),
		Handler:     func(context.Context, json.RawMessage) (any, error) { return nil, nil },
	}
	require.NoError(t, d.Register(tool))
	assert.Error(t, d.Register(tool))
	assert.Error(t, d.Register(Tool{Name: "nohandler"}))
	assert.Error(t, d.Register(Tool{Handler: tool.Handler}))
}

func TestCallValidatesAgainstSchema(t *testing.T) {
	d := NewDispatcher(nil)
	calls := 0
	require.NoError(t, d.Register(Tool{
		Name:        "echo",
		InputSchema: GenerateSchema[echoArgs](),
		Handler: func(_ context.Context, raw json.RawMessage) (any, error) {
			calls++
			var in echoArgs
			_ = json.Unmarshal(raw, &in)
			return map[string]any{"word": in.Word}, nil
		},
	}))

	res := d.Call(context.Background(), "echo", json.RawMessage(`{"word":"hi","times":2}`))
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"success":true,"data":{"word":"hi"}}`, res.Text())

	for _, bad := range []string{`{}`, `{"word":""}`, `{"word":"hi","times":9}`, `{"word":"hi","extra":1}`, `[1,2]`, `not json`} {
		res := d.Call(context.Background(), "echo", json.RawMessage(bad))
		assert.True(t, res.IsError, bad)
	}
	assert.Equal(t, 1, calls)
}

func TestCallRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil)
	require.NoError(t, d.Register(Tool{
		Name:    "explode",
		Handler: func(context.Context, json.RawMessage) (any, error) { panic("kaboom") },
	}))

	var observed bool
	d.Observe = func(tool string, isError bool, _ time.Duration) {
		observed = tool == "explode" && isError
	}

	res := d.Call(context.Background(), "explode", nil)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"success":false,"message":"internal error in explode"}`, res.Text())
	assert.True(t, observed)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "node_id is required", errorMessage(errors.Wrap(&aitable.ValidationError{Message: "node_id is required"}, "ctx")))
	assert.Equal(t, "Not Found: "+aitable.FallbackMessage, errorMessage(&aitable.RemoteAPIError{StatusCode: 404, Status: "Not Found"}))
	assert.Equal(t, "missing required parameters: type", errorMessage(&aitable.MissingParameterError{Names: []string{"type"}}))
	assert.Equal(t, "dial tcp: refused", errorMessage(errors.New("dial tcp: refused")))
}
