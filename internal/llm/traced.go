package llm

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// CallTracker records the outcome of a model call.
type CallTracker interface {
	IsEnabled() bool
	TrackLLMCall(ctx context.Context, model, operation string, tokens int, latencyMs int64, success bool) error
}

// TracedTransport wraps a Transport and reports every call to a CallTracker.
type TracedTransport struct {
	inner     Transport
	tracker   CallTracker
	model     string
	operation string
}

// NewTracedTransport wraps inner. operation labels the calls in analytics.
func NewTracedTransport(inner Transport, tracker CallTracker, model, operation string) *TracedTransport {
	return &TracedTransport{inner: inner, tracker: tracker, model: model, operation: operation}
}

// Invoke forwards to the wrapped transport and tracks the call.
func (tt *TracedTransport) Invoke(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	result, err := tt.inner.Invoke(ctx, prompt)
	tt.track(ctx, prompt, result, start, err)
	return result, err
}

// InvokeWithSchema forwards the schema when the wrapped transport supports it.
func (tt *TracedTransport) InvokeWithSchema(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	st, ok := tt.inner.(SchemaTransport)
	if !ok {
		return tt.Invoke(ctx, prompt)
	}
	start := time.Now()
	result, err := st.InvokeWithSchema(ctx, prompt, schema)
	tt.track(ctx, prompt, result, start, err)
	return result, err
}

func (tt *TracedTransport) track(ctx context.Context, prompt, result string, start time.Time, err error) {
	if tt.tracker == nil || !tt.tracker.IsEnabled() {
		return
	}
	_ = tt.tracker.TrackLLMCall(ctx, tt.model, tt.operation, estimateTokens(prompt, result), time.Since(start).Milliseconds(), err == nil)
}

// estimateTokens provides a rough token count (4 chars per token).
func estimateTokens(prompt, completion string) int {
	return (len(prompt) + len(completion)) / 4
}
