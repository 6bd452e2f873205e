package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rcliao/assoc-memory/internal/model"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 1024
)

// Config configures the Claude oracle.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	BaseURL   string
}

// messageCreator is the slice of the Anthropic client Claude uses.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Claude implements LinkConfirmer, EvolutionJudge and Enricher with the
// Anthropic Messages API.
type Claude struct {
	messages  messageCreator
	model     string
	maxTokens int64
}

var (
	_ LinkConfirmer  = (*Claude)(nil)
	_ EvolutionJudge = (*Claude)(nil)
	_ Enricher       = (*Claude)(nil)
)

// NewClaudeFromConfig returns nil when no API key is configured; callers
// treat a nil oracle as "no credentials".
func NewClaudeFromConfig(cfg Config) *Claude {
	if cfg.APIKey == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return newClaude(&client.Messages, cfg)
}

func newClaude(m messageCreator, cfg Config) *Claude {
	c := &Claude{messages: m, model: cfg.Model, maxTokens: cfg.MaxTokens}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c
}

// ConfirmLinks asks Claude which candidates are related to source.
func (c *Claude) ConfirmLinks(ctx context.Context, source *model.Memory, candidates []model.Candidate) ([]LinkVerdict, error) {
	text, err := c.complete(ctx, linkSystemPrompt, linkPrompt(source, candidates))
	if err != nil {
		return nil, err
	}
	return parseLinkVerdicts(text)
}

// JudgeEvolution asks Claude whether target should absorb what newMem adds.
func (c *Claude) JudgeEvolution(ctx context.Context, target, newMem *model.Memory) (EvolutionDecision, error) {
	text, err := c.complete(ctx, evolutionSystemPrompt, evolutionPrompt(target, newMem))
	if err != nil {
		return EvolutionDecision{}, err
	}
	return parseEvolutionDecision(text)
}

// Enrich asks Claude for keywords, tags and a context sentence.
func (c *Claude) Enrich(ctx context.Context, m *model.Memory) (Enrichment, error) {
	text, err := c.complete(ctx, enrichSystemPrompt, enrichPrompt(m))
	if err != nil {
		return Enrichment{}, err
	}
	return parseEnrichment(text)
}

func (c *Claude) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: claude API error: %v", ErrOracle, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", ErrOracle)
	}
	return sb.String(), nil
}
