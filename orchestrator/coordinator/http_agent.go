// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"complianceflow/platform/shared/types"
)

// DefaultAgentTimeout is the HTTP timeout for agents that configure none.
const DefaultAgentTimeout = 20 * time.Second

// maxAgentResponse caps how much of an agent response body is read.
const maxAgentResponse = 1 << 20

// HTTPAgentConfig describes a remote agent.
type HTTPAgentConfig struct {
	Name           string            `yaml:"name"`
	Endpoint       string            `yaml:"endpoint"`
	TimeoutSeconds int               `yaml:"timeout_seconds,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
}

// AgentsFile is the layout of the AGENTS_FILE document.
type AgentsFile struct {
	Agents []HTTPAgentConfig `yaml:"agents"`
}

// HTTPAgent invokes a remote agent by POSTing the request as JSON.
type HTTPAgent struct {
	cfg    HTTPAgentConfig
	client *http.Client
}

// NewHTTPAgent creates an HTTPAgent. A nil client gets one with the
// configured timeout.
func NewHTTPAgent(cfg HTTPAgentConfig, client *http.Client) *HTTPAgent {
	if client == nil {
		timeout := DefaultAgentTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPAgent{cfg: cfg, client: client}
}

// Name implements Agent.
func (a *HTTPAgent) Name() string { return a.cfg.Name }

// agentResponse is what a remote agent answers with.
type agentResponse struct {
	Decision   string   `json:"decision"`
	Confidence *float64 `json:"confidence,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Invoke implements Agent.
func (a *HTTPAgent) Invoke(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, os.ExpandEnv(v))
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent %s request failed: %w", a.cfg.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}

	var ar agentResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("agent %s returned status %d", a.cfg.Name, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse agent response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := ar.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("agent %s failed: %s", a.cfg.Name, msg)
	}

	return &Result{
		Agent:      a.cfg.Name,
		Decision:   types.ParseDecision(ar.Decision),
		Confidence: ar.Confidence,
		Rationale:  ar.Rationale,
		Issues:     ar.Issues,
		Warnings:   ar.Warnings,
	}, nil
}

// ParseAgents decodes an agents document and validates each entry.
func ParseAgents(data []byte) ([]HTTPAgentConfig, error) {
	var f AgentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse agents file: %w", err)
	}
	seen := make(map[string]bool)
	for i, a := range f.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		if !strings.HasPrefix(a.Endpoint, "http://") && !strings.HasPrefix(a.Endpoint, "https://") {
			return nil, fmt.Errorf("agent %s: endpoint must be an http(s) URL", a.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("agent %s: duplicate name", a.Name)
		}
		seen[a.Name] = true
	}
	return f.Agents, nil
}

// LoadAgents reads an agents file and builds one HTTPAgent per entry.
func LoadAgents(path string) ([]Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents file: %w", err)
	}
	cfgs, err := ParseAgents(data)
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(cfgs))
	for _, c := range cfgs {
		agents = append(agents, NewHTTPAgent(c, nil))
	}
	return agents, nil
}
