package models_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/varsilias/askdesk/internal/models"
)

func TestStaticManager(t *testing.T) {
	m := models.NewStaticManager([]string{"score", "", "score"})
	list, _ := m.List(context.Background())
	if len(list) != 1 {
		t.Fatalf("List = %v", list)
	}
	list[0] = "mutated"
	if err := m.Healthy(context.Background(), "score"); err != nil {
		t.Fatalf("Healthy: %v", err)
	}
	if err := m.Healthy(context.Background(), "other"); !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("err = %v", err)
	}
}

func TestEndpointManager(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	m := models.NewEndpointManager(srv.URL+"/score", srv.Client())
	name := models.DeploymentName(srv.URL)

	list, _ := m.List(context.Background())
	if len(list) != 1 || list[0] != name {
		t.Fatalf("List = %v, want [%s]", list, name)
	}
	if err := m.Healthy(context.Background(), name); err != nil {
		t.Fatalf("Healthy: %v", err)
	}
	if method != http.MethodHead {
		t.Fatalf("check method = %s", method)
	}
	if err := m.Healthy(context.Background(), "other"); !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("err = %v", err)
	}

	srv.Close()
	if err := m.Healthy(context.Background(), name); err == nil {
		t.Fatal("closed endpoint reported healthy")
	}
}

func TestDeploymentName(t *testing.T) {
	tests := map[string]string{
		"https://my-ep.eastus.inference.ml.azure.com/score": "my-ep.eastus.inference.ml.azure.com",
		"http://localhost:8000/v1/answer":                   "localhost:8000",
		"not a url":                                         "not a url",
	}
	for in, want := range tests {
		if got := models.DeploymentName(in); got != want {
			t.Fatalf("DeploymentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIManager(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-a","object":"model"},{"id":"gpt-b","object":"model"}]}`)
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	m := models.NewOpenAIManager(openai.NewClientWithConfig(cfg))

	list, err := m.List(context.Background())
	if err != nil || len(list) != 2 || list[1] != "gpt-b" {
		t.Fatalf("List = %v, %v", list, err)
	}
	if err := m.Healthy(context.Background(), "gpt-c"); !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("err = %v", err)
	}
}
