package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"workflow-engine/backend/internal/config"
)

// Connector kinds known to the engine.
const (
	ConnectorOCR            = "ocr"
	ConnectorScoring        = "scoring"
	ConnectorDecisionFlow   = "decision_flow"
	ConnectorNotification   = "notification"
	ConnectorPrivilegeCheck = "privilege_check"
	ConnectorCreditBureau   = "credit_bureau"
)

const defaultConnectorTimeout = 30 * time.Second

// HTTPConnector is a Connector that POSTs the request as JSON.
type HTTPConnector struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPConnector creates an HTTPConnector calling baseURL joined with path.
func NewHTTPConnector(name, baseURL, path string, timeout time.Duration) *HTTPConnector {
	if timeout <= 0 {
		timeout = defaultConnectorTimeout
	}
	url := strings.TrimRight(baseURL, "/")
	if path = strings.Trim(path, "/"); path != "" {
		url += "/" + path
	}
	return &HTTPConnector{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the connector name.
func (c *HTTPConnector) Name() string {
	return c.name
}

// Call sends req and decodes the JSON object in the response.
func (c *HTTPConnector) Call(ctx context.Context, req ConnectorRequest) (Payload, error) {
	payload, err := c.call(ctx, req)
	if err != nil {
		if isCancellation(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &ConnectorError{Connector: c.name, Err: err}
	}
	return payload, nil
}

func (c *HTTPConnector) call(ctx context.Context, req ConnectorRequest) (Payload, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	payload := Payload{}
	if resp.StatusCode == http.StatusNoContent {
		return payload, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return payload, nil
}

// ConnectorRegistry looks connectors up by name.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewConnectorRegistry creates a registry holding connectors.
func NewConnectorRegistry(connectors ...Connector) *ConnectorRegistry {
	r := &ConnectorRegistry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// ConnectorsFromConfig builds an HTTPConnector for every configured entry with a URL.
func ConnectorsFromConfig(cfg map[string]config.ConnectorConfig) *ConnectorRegistry {
	r := NewConnectorRegistry()
	for name, c := range cfg {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		r.Register(NewHTTPConnector(strings.ToLower(name), c.URL, c.Path, c.Timeout))
	}
	return r
}

// Register adds c, replacing any connector with the same name.
func (r *ConnectorRegistry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
}

// Get returns the connector registered under name.
func (r *ConnectorRegistry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	return c, nil
}

// Names lists registered connectors in sorted order.
func (r *ConnectorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
