package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/CortexTrade/models"
	"github.com/sirupsen/logrus"
)

// OutputSchema describes the JSON object a caller expects back.
type OutputSchema struct {
	Name        string
	Description string
	JSONSchema  string
}

// Reasoner produces one structured JSON reply for a conversation.
type Reasoner interface {
	Generate(ctx context.Context, messages []*schema.Message, out OutputSchema) (json.RawMessage, error)
}

// ChatGenerator is the subset of an eino chat model the reasoner needs.
type ChatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ChatReasoner adapts a chat model to Reasoner.
type ChatReasoner struct {
	model   ChatGenerator
	name    string
	timeout time.Duration
}

type Option func(*ChatReasoner)

// WithTimeout bounds each Generate call.
func WithTimeout(d time.Duration) Option {
	return func(r *ChatReasoner) {
		r.timeout = d
	}
}

// WithName sets the source label used in errors and logs.
func WithName(name string) Option {
	return func(r *ChatReasoner) {
		if name != "" {
			r.name = name
		}
	}
}

func NewChatReasoner(m ChatGenerator, opts ...Option) *ChatReasoner {
	r := &ChatReasoner{model: m, name: "reasoner"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ChatReasoner) Generate(ctx context.Context, messages []*schema.Message, out OutputSchema) (json.RawMessage, error) {
	if r.model == nil {
		return nil, models.ConfigError(r.name, errors.New("chat model not configured"))
	}
	if len(messages) == 0 {
		return nil, models.ValidationError(r.name, errors.New("no messages"))
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.model.Generate(ctx, withInstruction(messages, out))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.UpstreamError(r.name, fmt.Errorf("timed out after %s", r.timeout))
		}
		return nil, models.UpstreamError(r.name, err)
	}
	if resp == nil {
		return nil, models.UpstreamError(r.name, errors.New("empty reply"))
	}

	logrus.WithFields(logrus.Fields{
		"reasoner": r.name,
		"schema":   out.Name,
		"elapsed":  time.Since(start).Round(time.Millisecond),
	}).Debug("reasoner replied")

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		return nil, models.ValidationError(r.name, fmt.Errorf("%s: %w", out.Name, err))
	}
	return raw, nil
}

// withInstruction adds the output contract to the system message, or prepends
// one when the conversation has none. The caller's messages are not modified.
func withInstruction(messages []*schema.Message, out OutputSchema) []*schema.Message {
	instruction := Instruction(out)
	if instruction == "" {
		return messages
	}

	msgs := slices.Clone(messages)
	if first := msgs[0]; first != nil && first.Role == schema.System {
		sys := *first
		sys.Content = strings.TrimRight(sys.Content, "\n") + "\n\n" + instruction
		msgs[0] = &sys
		return msgs
	}
	return append([]*schema.Message{schema.SystemMessage(instruction)}, msgs...)
}

// Instruction renders the reply contract for out.
func Instruction(out OutputSchema) string {
	if out.JSONSchema == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else.")
	if out.Description != "" {
		b.WriteString(" The object is ")
		b.WriteString(strings.TrimSuffix(out.Description, "."))
		b.WriteString(".")
	}
	b.WriteString("\nIt must conform to this JSON schema:\n")
	b.WriteString(out.JSONSchema)
	return b.String()
}

// ExtractJSON returns the first JSON object in a model reply. Markdown code
// fences and surrounding prose are tolerated.
func ExtractJSON(reply string) (json.RawMessage, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, errors.New("reply contains no JSON object")
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return raw, nil
}

// Unavailable returns a Reasoner that fails every call with err. It stands in
// for a model that could not be built so the error surfaces per run.
func Unavailable(err error) Reasoner {
	return unavailable{err: err}
}

type unavailable struct{ err error }

func (u unavailable) Generate(context.Context, []*schema.Message, OutputSchema) (json.RawMessage, error) {
	return nil, u.err
}
