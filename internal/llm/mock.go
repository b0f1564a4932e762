package llm

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"

	"newsquiz/internal/core"
)

// MockTransport implements SchemaTransport with canned replies for testing.
type MockTransport struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	schemas   []*genai.Schema
	// Respond, when set, computes the reply from the prompt and takes
	// precedence over the canned queue.
	Respond func(prompt string) (string, error)
}

// NewMockTransport returns a transport that replies with responses in order,
// repeating the last one once the queue is exhausted.
func NewMockTransport(responses ...string) *MockTransport {
	return &MockTransport{responses: responses}
}

// FailNext queues errors returned before any canned response.
func (m *MockTransport) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Invoke records the prompt and returns the next canned reply.
func (m *MockTransport) Invoke(ctx context.Context, prompt string) (string, error) {
	return m.InvokeWithSchema(ctx, prompt, nil)
}

// InvokeWithSchema records the prompt and schema and returns the next canned reply.
func (m *MockTransport) InvokeWithSchema(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.TransportError{Op: "mock", Err: err}
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.schemas = append(m.schemas, schema)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		m.mu.Unlock()
		return "", err
	}
	respond := m.Respond
	var reply string
	if respond == nil {
		switch len(m.responses) {
		case 0:
		case 1:
			reply = m.responses[0]
		default:
			reply = m.responses[0]
			m.responses = m.responses[1:]
		}
	}
	m.mu.Unlock()

	if respond != nil {
		return respond(prompt)
	}
	if reply == "" {
		return "", &core.TransportError{Op: "mock", Err: errors.New("empty response from model")}
	}
	return reply, nil
}

// Prompts returns every prompt received so far.
func (m *MockTransport) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Schemas returns the schema passed with each call, nil for plain Invoke.
func (m *MockTransport) Schemas() []*genai.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*genai.Schema(nil), m.schemas...)
}

// Calls returns the number of invocations.
func (m *MockTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
