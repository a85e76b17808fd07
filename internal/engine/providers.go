package engine

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

// Retries are owned by the generation supervisor, so the SDK clients never
// retry on their own.

type openAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

func newOpenAI(cfg Config) *openAIProvider {
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		ooption.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	return &openAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *openAIProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	obj := oshared.NewResponseFormatJSONObjectParam()
	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(p.model),
		Instructions:    openai.String(system),
		Input:           oresponses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Temperature:     openai.Float(p.temperature),
		MaxOutputTokens: openai.Int(p.maxTokens),
		Text: oresponses.ResponseTextConfigParam{
			Format: oresponses.ResponseFormatTextConfigUnionParam{OfJSONObject: &obj},
		},
	}
	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

type anthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

func newAnthropic(cfg Config) *anthropicProvider {
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		aoption.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	return &anthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (p *anthropicProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
