// internal/gpt/client.go
package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"macro-tracker/internal/meals"

	"github.com/sashabaranov/go-openai"
)

var ErrBadEstimate = errors.New("unusable estimate")

// Estimate is the model's guess for a described meal, ready to be logged as
// a quick macro.
type Estimate struct {
	Name     string  `json:"name"`
	ProteinG float64 `json:"protein"`
	CarbsG   float64 `json:"carbs"`
	FatG     float64 `json:"fat"`
}

// QuickLine turns the estimate into a single quick-macro meal line.
func (e *Estimate) QuickLine() meals.LineInput {
	return meals.LineInput{
		IsQuickMacro: true,
		Quantity:     1,
		Name:         e.Name,
		ProteinG:     e.ProteinG,
		CarbsG:       e.CarbsG,
		FatG:         e.FatG,
	}
}

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, "")
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.GPT4oMini,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

const systemPrompt = "You are a nutritionist. Estimate the macronutrients of the meal the user describes. " +
	`Answer with a single JSON object {"name": string, "protein": number, "carbs": number, "fat": number} ` +
	"with grams for the whole described portion and no other text."

func (c *Client) EstimateMacros(ctx context.Context, description string) (*Estimate, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: empty description", ErrBadEstimate)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: description},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      200,
		Temperature:    0.2,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("estimate macros: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from GPT API")
	}

	return parseEstimate(resp.Choices[0].Message.Content, description)
}

func parseEstimate(content, description string) (*Estimate, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var est Estimate
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &est); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEstimate, err)
	}
	if est.ProteinG < 0 || est.CarbsG < 0 || est.FatG < 0 {
		return nil, fmt.Errorf("%w: negative macros", ErrBadEstimate)
	}
	if strings.TrimSpace(est.Name) == "" {
		est.Name = description
	}
	return &est, nil
}
