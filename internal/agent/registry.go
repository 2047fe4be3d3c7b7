package agent

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// RegistryConfig holds model settings shared by all agents.
type RegistryConfig struct {
	Model      string
	MaxTurns   int
	MaxHistory int
}

// Registry maps content types to agent profiles and builds instances.
type Registry struct {
	client   ChatClient
	searcher Searcher
	cfg      RegistryConfig
}

// NewRegistry creates a registry backed by client and searcher.
func NewRegistry(client ChatClient, searcher Searcher, cfg RegistryConfig) *Registry {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 4
	}
	return &Registry{client: client, searcher: searcher, cfg: cfg}
}

// New returns a fresh agent for contentType with its own memory.
func (r *Registry) New(contentType string) Capability {
	return r.build(ProfileFor(contentType), false)
}

// Fallback returns a fresh general agent that keeps no memory.
func (r *Registry) Fallback() Capability {
	return r.build(ProfileFor(""), true)
}

func (r *Registry) build(profile Profile, singleTurn bool) *OllamaAgent {
	return &OllamaAgent{
		client:     r.client,
		searcher:   r.searcher,
		profile:    profile,
		model:      r.cfg.Model,
		maxTurns:   r.cfg.MaxTurns,
		maxHistory: r.cfg.MaxHistory,
		singleTurn: singleTurn,
	}
}

// NewOllamaClient creates an ollama API client for host.
func NewOllamaClient(host string) (*api.Client, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama host %q must be an absolute URL", host)
	}
	return api.NewClient(base, http.DefaultClient), nil
}
