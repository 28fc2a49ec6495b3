package gen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyCompletion reports that the model returned no usable text. An
// empty completion requires fallback handling, the same as any failure.
var ErrEmptyCompletion = errors.New("empty completion")

// Role marks which side of the dialog a turn belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior exchange passed along as generation context, used for
// the psychologist dialog history and for edit-the-previous-text requests.
type Turn struct {
	Role Role
	Text string
}

// Generator produces text from a system prompt plus dialog turns. The last
// turn is the request itself.
type Generator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
}

// Config holds the OpenAI client settings.
type Config struct {
	APIKey  string `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model   string `yaml:"model" envconfig:"OPENAI_MODEL"`
	Timeout int    `yaml:"timeout_seconds" envconfig:"OPENAI_TIMEOUT_SECONDS"`
}

type openaiGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI constructs a Generator backed by the OpenAI chat completions
// API.
func NewOpenAI(cfg Config) Generator {
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openaiGenerator{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
	}
}

func (g *openaiGenerator) Generate(ctx context.Context, system string, turns []Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		default:
			messages = append(messages, openai.UserMessage(t.Text))
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
