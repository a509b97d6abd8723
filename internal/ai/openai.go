package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/trends"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient writes story-cluster summaries with the Chat Completions API.
type OpenAIClient struct {
	client   *openai.Client
	model    string
	language string
}

type Config struct {
	APIKey   string
	Model    string
	BaseURL  string // optional
	Language string // optional, defaults to English
}

func NewOpenAI(cfg Config) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, errs.New(errs.KindConfig, "openai", "model must be specified")
	}
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	return &OpenAIClient{client: c, model: cfg.Model, language: cfg.Language}, nil
}

const maxSampleRunes = 400

// SummarizeCluster describes what a story cluster is about in a few sentences.
func (o *OpenAIClient) SummarizeCluster(ctx context.Context, c trends.StoryCluster, samples []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	b := &strings.Builder{}
	fmt.Fprintf(b, "Theme: %s\n", c.MainTheme)
	if len(c.SubThemes) > 0 {
		fmt.Fprintf(b, "Related: %s\n", strings.Join(c.SubThemes, "; "))
	}
	fmt.Fprintf(b, "Platforms: %s\nKey phrases: %s\n", strings.Join(c.Platforms, ", "), strings.Join(c.KeyPhrases, ", "))
	if n := len(c.SentimentEvolution); n > 0 {
		fmt.Fprintf(b, "Sentiment went from %.2f to %.2f\n", c.SentimentEvolution[0].Sentiment, c.SentimentEvolution[n-1].Sentiment)
	}
	b.WriteString("Sample mentions:\n")
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if r := []rune(s); len(r) > maxSampleRunes {
			s = string(r[:maxSampleRunes])
		}
		fmt.Fprintf(b, "- %s\n", s)
	}

	sys := fmt.Sprintf(`
		You summarize what people are saying online about a brand or topic. Write in %s.
		Return 2-3 plain sentences (40-120 words): what happened, where it is discussed, and the overall mood.
		Do not invent facts that are not in the mentions. No links, no lists.
		`, langOrDefault(o.language))
	out, err := o.create(ctx, sys, b.String())
	if err != nil {
		slog.Error("openai: summarize cluster error", "cluster", c.ID, "err", err)
		return "", errs.Provider("openai", err)
	}
	return strings.TrimSpace(out), nil
}

func (o *OpenAIClient) create(ctx context.Context, system, user string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func langOrDefault(lang string) string {
	l := strings.TrimSpace(lang)
	if l == "" {
		return "English"
	}
	return l
}
