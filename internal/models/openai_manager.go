package models

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// OpenAIManager lists models from an OpenAI-compatible server.
type OpenAIManager struct{ c *openai.Client }

func NewOpenAIManager(c *openai.Client) *OpenAIManager { return &OpenAIManager{c: c} }

func (m *OpenAIManager) List(ctx context.Context) ([]string, error) {
	res, err := m.c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Models))
	for _, it := range res.Models {
		out = append(out, it.ID)
	}
	return out, nil
}

func (m *OpenAIManager) Healthy(ctx context.Context, model string) error {
	// best-effort: if the server lists it, we consider it healthy
	items, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it == model {
			return nil
		}
	}
	return ErrUnknownModel
}
