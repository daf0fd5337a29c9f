// Package nlu asks a language model whether a free-form command is a
// request to describe the surroundings.
package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ErrNoKey is returned by New without an API key.
var ErrNoKey = errors.New("nlu: api key is empty")

// DefaultModel is used when Options.Model is empty.
const DefaultModel = openai.ChatModelGPT5Nano

const systemPrompt = `
You are the command classifier of a wearable scene describer.
The user spoke a short command after a wake phrase. Decide whether the
command asks the device to look at, describe or identify what is in front
of the user.

RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Output ONLY JSON. No markdown.

OUTPUT FORMAT:
{"describe": true|false}

If the meaning is unclear, output {"describe": false}.
`

// Options configures a Matcher.
type Options struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Matcher implements the fallback intent check with a chat completion.
type Matcher struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// New returns a Matcher. A nil HTTPClient uses the library default.
func New(opts Options, logger *slog.Logger) (*Matcher, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNoKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	model := opts.Model
	if model == "" {
		model = string(DefaultModel)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	return &Matcher{
		client: openai.NewClient(reqOpts...),
		model:  model,
		logger: logger.With("component", "nlu"),
	}, nil
}

// Match reports whether command asks for a scene description.
func (m *Matcher) Match(ctx context.Context, command string) (bool, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return false, nil
	}

	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(command),
		},
		Model: openai.ChatModel(m.model),
	})
	if err != nil {
		return false, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	m.logger.Debug("classified", "command", command, "data", content)
	return ParseReply(content)
}

type reply struct {
	Describe *bool `json:"describe"`
}

// ParseReply decodes the model output. Code fences around the JSON are
// tolerated.
func ParseReply(content string) (bool, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return false, errors.New("empty message content")
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	var out reply
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return false, fmt.Errorf("unmarshal reply: %w (raw: %s)", err, content)
	}
	if out.Describe == nil {
		return false, fmt.Errorf("reply has no describe field (raw: %s)", content)
	}
	return *out.Describe, nil
}
