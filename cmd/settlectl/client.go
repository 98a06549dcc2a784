package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/service"
)

// apiClient talks to the settle HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(server, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(server, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil {
			if apiErr.Error != "" {
				msg = apiErr.Error
			} else if apiErr.Message != "" {
				msg = apiErr.Message
			}
		}
		return fmt.Errorf("%s (HTTP %d)", msg, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) startRun(ctx context.Context, runID string, docs []domain.Document) (string, error) {
	var resp struct {
		RunID string `json:"run_id"`
	}
	body := map[string]any{"run_id": runID, "documents": docs}
	if err := c.do(ctx, http.MethodPost, "/v1/runs", body, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

func (c *apiClient) getRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *apiClient) listRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	var resp struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/runs?limit="+strconv.Itoa(limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *apiClient) runEvents(ctx context.Context, runID string, types []string, limit int) ([]domain.Event, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}
	var resp struct {
		Events []domain.Event `json:"events"`
	}
	path := "/v1/runs/" + url.PathEscape(runID) + "/events?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *apiClient) cancelRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/v1/runs/"+url.PathEscape(runID)+"/cancel", nil, nil)
}

func (c *apiClient) listAgents(ctx context.Context) (*service.AgentCatalog, error) {
	var cat service.AgentCatalog
	if err := c.do(ctx, http.MethodGet, "/v1/agents", nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// watch opens the progress websocket of a run.
func (c *apiClient) watch(ctx context.Context, runID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/ws"
	u.RawQuery = url.Values{"run_id": {runID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}
