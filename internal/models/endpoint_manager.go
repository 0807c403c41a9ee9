package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// EndpointManager describes a single hosted inference deployment. Its one
// model is named after the deployment host.
type EndpointManager struct {
	url    string
	name   string
	client *http.Client
}

func NewEndpointManager(rawURL string, client *http.Client) *EndpointManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &EndpointManager{url: rawURL, name: DeploymentName(rawURL), client: client}
}

// DeploymentName is the host of an endpoint URL; deployments are told apart
// by host (e.g. "my-ep.eastus.inference.ml.azure.com").
func DeploymentName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	return u.Host
}

func (m *EndpointManager) List(ctx context.Context) ([]string, error) {
	return []string{m.name}, nil
}

// Healthy checks that model names this deployment and that the endpoint
// answers HTTP at all. Any status counts, since scoring endpoints reject
// requests without a body or key.
func (m *EndpointManager) Healthy(ctx context.Context, model string) error {
	if model != m.name {
		return ErrUnknownModel
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		return err
	}
	res, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint %s unreachable: %w", m.name, err)
	}
	res.Body.Close()
	return nil
}
