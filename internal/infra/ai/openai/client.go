package openai

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"

    "github.com/sashabaranov/go-openai"

    domai "github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
    "github.com/bryanwahyu/telemetry-insight/internal/infra/ai/prompt"
)

const maxTokens = 4096

type Client struct {
    *openai.Client
    Model string
}

func NewClient(apiKey, model string) *Client {
    return &Client{Client: openai.NewClient(apiKey), Model: model}
}

func (c *Client) GenerateInsights(ctx context.Context, in domai.InsightRequest) (*domai.RawInsights, error) {
    model := c.Model
    if model == "" {
        model = "gpt-4o-mini"
    }
    req := openai.ChatCompletionRequest{
        Model: model,
        ResponseFormat: &openai.ChatCompletionResponseFormat{
            Type: openai.ChatCompletionResponseFormatTypeJSONObject,
        },
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
            {Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(in)},
        },
    }
    // For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
    if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
        req.MaxCompletionTokens = maxTokens
    } else {
        req.MaxTokens = maxTokens
    }

    resp, err := c.CreateChatCompletion(ctx, req)
    if err != nil {
        var apiErr *openai.APIError
        if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
            return nil, domai.ErrQuotaExceeded
        }
        return nil, fmt.Errorf("failed to create chat completion: %w", err)
    }
    if len(resp.Choices) == 0 {
        return nil, domai.ErrEmptyResponse
    }

    payload, err := extractJSONPayload(resp.Choices[0].Message.Content)
    if err != nil {
        return nil, err
    }

    var out domai.RawInsights
    if err := json.Unmarshal([]byte(payload), &out); err != nil {
        return nil, fmt.Errorf("decode insights payload: %w", err)
    }
    out.Model = resp.Model
    out.PromptTokens = resp.Usage.PromptTokens
    out.CompletionTokens = resp.Usage.CompletionTokens
    return &out, nil
}

// extractJSONPayload trims any stray text the model wraps around the object.
func extractJSONPayload(text string) (string, error) {
    start := strings.Index(text, "{")
    end := strings.LastIndex(text, "}")
    if start == -1 || end == -1 || end <= start {
        return "", domai.ErrEmptyResponse
    }
    return text[start : end+1], nil
}
