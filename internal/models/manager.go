package models

import (
	"context"
	"errors"
	"slices"
)

var ErrUnknownModel = errors.New("unknown model")

// Manager reports the deployments behind the active engine.
type Manager interface {
	List(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context, model string) error
}

// StaticManager serves a fixed, deduplicated list. The echo engine uses it.
type StaticManager struct{ names []string }

func NewStaticManager(names []string) *StaticManager {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return &StaticManager{names: out}
}

func (m *StaticManager) List(ctx context.Context) ([]string, error) {
	return slices.Clone(m.names), nil
}

func (m *StaticManager) Healthy(ctx context.Context, model string) error {
	if !slices.Contains(m.names, model) {
		return ErrUnknownModel
	}
	return nil
}
