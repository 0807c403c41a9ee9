package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/varsilias/askdesk/internal/endpoint"
	"github.com/varsilias/askdesk/pkg/types"
)

// OpenAIEngine talks to any OpenAI-compatible chat completion API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	sysmsg string
	log    *slog.Logger
}

func NewOpenAIEngine(client *openai.Client, model, sysmsg string, log *slog.Logger) *OpenAIEngine {
	return &OpenAIEngine{client: client, model: model, sysmsg: sysmsg, log: log}
}

// NewOpenAIClient builds a client for baseURL; an empty baseURL means api.openai.com.
func NewOpenAIClient(baseURL, apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (e *OpenAIEngine) Ask(ctx context.Context, question string, history []types.Turn) endpoint.Response {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if e.sysmsg != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.sysmsg})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question})

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
	})
	if err != nil {
		res := classifyOpenAIError(ctx, err)
		e.log.Error("openai completion failed", "reason", res.Reason.String(), "err", err.Error())
		return res
	}
	if len(resp.Choices) == 0 {
		e.log.Error("openai completion returned no choices", "model", e.model)
		return endpoint.ErrorResponse(endpoint.ReasonMalformed, endpoint.MsgUnexpectedFormat)
	}
	return endpoint.Response{
		Kind:     endpoint.KindAnswer,
		Answer:   strings.TrimSpace(resp.Choices[0].Message.Content),
		Attempts: 1,
	}
}

func classifyOpenAIError(ctx context.Context, err error) endpoint.Response {
	if ctx.Err() != nil {
		return endpoint.ErrorResponse(endpoint.ReasonCanceled, "request canceled")
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.HTTPStatusCode) {
			return endpoint.ErrorResponse(endpoint.ReasonUnavailable, endpoint.MsgUnavailable)
		}
		return endpoint.ErrorResponse(endpoint.ReasonApplication, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && !transientStatus(reqErr.HTTPStatusCode) {
		return endpoint.ErrorResponse(endpoint.ReasonApplication, reqErr.Error())
	}
	return endpoint.ErrorResponse(endpoint.ReasonUnavailable, endpoint.MsgUnavailable)
}

func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
