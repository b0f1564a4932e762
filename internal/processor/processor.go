// Package processor turns typed requests into prompts and raw model replies
// back into typed, validated results. Transport and rate limiting are
// supplied by the caller through Execute.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/genai"

	"newsquiz/internal/core"
	"newsquiz/internal/llm"
)

// Processor builds a prompt for Req and parses the model reply into Res.
// BuildPrompt is pure. ParseResponse receives the originating request so
// that results can be checked against it.
type Processor[Req, Res any] interface {
	Name() string
	BuildPrompt(req Req) string
	ParseResponse(req Req, raw string) (Res, error)
}

// SchemaProvider is implemented by processors that can describe their reply
// as a structured-output schema.
type SchemaProvider interface {
	ResponseSchema() *genai.Schema
}

// Limiter gates calls to the AI backend.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Execute acquires a token, builds the prompt, invokes the transport and
// parses the reply. Transport failures are returned as *core.TransportError.
func Execute[Req, Res any](ctx context.Context, limiter Limiter, transport llm.Transport, p Processor[Req, Res], req Req) (Res, error) {
	var zero Res

	if limiter != nil {
		if err := limiter.Acquire(ctx); err != nil {
			return zero, err
		}
	}

	prompt := p.BuildPrompt(req)

	var raw string
	var err error
	sp, hasSchema := any(p).(SchemaProvider)
	st, supportsSchema := transport.(llm.SchemaTransport)
	if hasSchema && supportsSchema {
		raw, err = st.InvokeWithSchema(ctx, prompt, sp.ResponseSchema())
	} else {
		raw, err = transport.Invoke(ctx, prompt)
	}
	if err != nil {
		if !errors.Is(err, core.ErrTransport) {
			err = &core.TransportError{Op: p.Name(), Err: err}
		}
		return zero, err
	}
	if strings.TrimSpace(raw) == "" {
		return zero, &core.TransportError{Op: p.Name(), Err: errors.New("empty response from model")}
	}

	return p.ParseResponse(req, raw)
}

// StripCodeFence returns the contents of the first ``` or ```json fenced
// block in a model reply, ignoring any prose around it. A reply that is
// already bare JSON or has no fence is returned trimmed.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "```")
	if start < 0 || strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	body := s[start+3:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	// Drop the info string (e.g. "json") on the opening line.
	if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.ContainsAny(body[:i], "{[") {
		body = body[i+1:]
	} else {
		body = strings.TrimPrefix(strings.TrimSpace(body), "json")
	}
	return strings.TrimSpace(body)
}

// decodeJSON strips any fence and decodes raw into v, reporting a
// *core.ParseError on malformed input.
func decodeJSON(name, raw string, v any) error {
	body := StripCodeFence(raw)
	if body == "" {
		return &core.ParseError{Processor: name, Reason: "no JSON content", Raw: raw}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return &core.ParseError{Processor: name, Reason: "malformed JSON", Raw: raw, Err: err}
	}
	return nil
}

// isJSONArray reports whether the fenced or bare reply is a top-level array.
func isJSONArray(raw string) bool {
	return strings.HasPrefix(StripCodeFence(raw), "[")
}
