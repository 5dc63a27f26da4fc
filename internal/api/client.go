// Package api provides the REST client and data model for the roundtable
// backend. Streaming endpoints are exposed as request builders; the stream
// package owns their consumption.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client talks to the roundtable backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout for non-streaming requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client, for callers that issue
// streaming requests with their own timeout discipline.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// errorBody is the FastAPI-style error envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// do issues a JSON request and decodes the response into out (when non-nil).
// Non-2xx responses are turned into errors carrying the server's detail
// message when one is present.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Detail != "" {
			return fmt.Errorf("api: %s %s: %s (status %d)", method, path, eb.Detail, resp.StatusCode)
		}
		return fmt.Errorf("api: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: unmarshal response: %w", err)
	}
	return nil
}

// ListDiscussions returns all discussions, newest first per server order.
func (c *Client) ListDiscussions(ctx context.Context) ([]Discussion, error) {
	var out []Discussion
	if err := c.do(ctx, http.MethodGet, "/api/discussions/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDiscussion fetches the full snapshot for one discussion.
func (c *Client) GetDiscussion(ctx context.Context, id int) (*DiscussionDetail, error) {
	var out DiscussionDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/discussions/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDiscussionByCode fetches a discussion through its share code.
func (c *Client) GetDiscussionByCode(ctx context.Context, code string) (*DiscussionDetail, error) {
	var out DiscussionDetail
	if err := c.do(ctx, http.MethodGet, "/api/discussions/by-code/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDiscussion creates a new discussion.
func (c *Client) CreateDiscussion(ctx context.Context, req CreateDiscussionRequest) (*Discussion, error) {
	var out Discussion
	if err := c.do(ctx, http.MethodPost, "/api/discussions/", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDiscussion removes a discussion and everything under it.
func (c *Client) DeleteDiscussion(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/discussions/%d", id), nil, nil)
}

// StopDiscussion pauses a running discussion so it can be resumed later.
func (c *Client) StopDiscussion(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/stop", id), nil, nil)
}

// ResetDiscussion deletes all messages and restores the created state.
func (c *Client) ResetDiscussion(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/reset", id), nil, nil)
}

// CompleteDiscussion manually marks a discussion completed, ending the
// cyclic loop.
func (c *Client) CompleteDiscussion(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/complete", id), nil, nil)
}

// PrepareAgents asks the server to generate the agent lineup for a
// discussion that does not have one yet.
func (c *Client) PrepareAgents(ctx context.Context, id int) ([]AgentConfig, error) {
	var out []AgentConfig
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/prepare-agents", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateTitle asks the server to derive a short title from the transcript.
func (c *Client) GenerateTitle(ctx context.Context, id int) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/generate-title", id), nil, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}

// SubmitUserInput posts a user message into a discussion and returns the
// server-confirmed identity and content.
func (c *Client) SubmitUserInput(ctx context.Context, id int, content string) (*UserInputResponse, error) {
	body := map[string]string{"content": content}
	var out UserInputResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/user-input", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMessage replaces the content of a finalized message.
func (c *Client) UpdateMessage(ctx context.Context, discussionID, messageID int, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/discussions/%d/messages/%d", discussionID, messageID), body, nil)
}

// DeleteMessage removes one finalized message.
func (c *Client) DeleteMessage(ctx context.Context, discussionID, messageID int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/discussions/%d/messages/%d", discussionID, messageID), nil, nil)
}

// TruncateAfter deletes every message after messageID. A nil messageID
// deletes everything, which backs topic edits.
func (c *Client) TruncateAfter(ctx context.Context, discussionID int, messageID *int) (int, error) {
	body := map[string]*int{"message_id": messageID}
	var out TruncateResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/discussions/%d/messages/truncate-after", discussionID), body, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// UpdateTopic rewrites the discussion topic.
func (c *Client) UpdateTopic(ctx context.Context, id int, topic string) error {
	body := map[string]string{"topic": topic}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/discussions/%d/topic", id), body, nil)
}

// UpdateAgent edits one agent's configuration while the discussion is not
// running.
func (c *Client) UpdateAgent(ctx context.Context, discussionID, agentID int, update AgentUpdate) (*AgentConfig, error) {
	var out AgentConfig
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/discussions/%d/agents/%d", discussionID, agentID), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMaterials returns the materials attached to a discussion.
func (c *Client) ListMaterials(ctx context.Context, id int) ([]Material, error) {
	var out []Material
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/discussions/%d/materials", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ObserverHistory returns the observer side-chat history for a discussion.
func (c *Client) ObserverHistory(ctx context.Context, id int) ([]ObserverMessage, error) {
	var out []ObserverMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/discussions/%d/observer/history", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearObserverHistory deletes the observer side-chat history.
func (c *Client) ClearObserverHistory(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/discussions/%d/observer/history", id), nil, nil)
}

// ListProviders returns all configured LLM providers with their models.
func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	var out []Provider
	if err := c.do(ctx, http.MethodGet, "/api/llm-providers/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProvider registers a new LLM provider.
func (c *Client) CreateProvider(ctx context.Context, name, provider, apiKey, baseURL string) (*Provider, error) {
	body := map[string]string{"name": name, "provider": provider}
	if apiKey != "" {
		body["api_key"] = apiKey
	}
	if baseURL != "" {
		body["base_url"] = baseURL
	}
	var out Provider
	if err := c.do(ctx, http.MethodPost, "/api/llm-providers/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProvider edits a provider.
func (c *Client) UpdateProvider(ctx context.Context, id int, update ProviderUpdate) (*Provider, error) {
	var out Provider
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/llm-providers/%d", id), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProvider removes a provider and its models.
func (c *Client) DeleteProvider(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/llm-providers/%d", id), nil, nil)
}

// AddModel registers a model under a provider.
func (c *Client) AddModel(ctx context.Context, providerID int, model, name string) (*Model, error) {
	body := map[string]string{"model": model}
	if name != "" {
		body["name"] = name
	}
	var out Model
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/llm-providers/%d/models", providerID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateModel edits a model entry.
func (c *Client) UpdateModel(ctx context.Context, providerID, modelID int, model, name string) (*Model, error) {
	body := map[string]string{}
	if model != "" {
		body["model"] = model
	}
	if name != "" {
		body["name"] = name
	}
	var out Model
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/llm-providers/%d/models/%d", providerID, modelID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteModel removes a model entry.
func (c *Client) DeleteModel(ctx context.Context, providerID, modelID int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/llm-providers/%d/models/%d", providerID, modelID), nil, nil)
}

// GetSetting reads a system setting by key. A missing setting returns an
// empty value, not an error.
func (c *Client) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var out Setting
	if err := c.do(ctx, http.MethodGet, "/api/settings/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutSetting writes a system setting.
func (c *Client) PutSetting(ctx context.Context, key, value string) error {
	body := map[string]string{"value": value}
	return c.do(ctx, http.MethodPut, "/api/settings/"+url.PathEscape(key), body, nil)
}

// RunRequest builds the streaming run request for a discussion. The
// singleRound hint requests a bounded one-cycle execution; the edit-and-
// resume flow uses it after a completed discussion is reopened.
func (c *Client) RunRequest(id int, singleRound bool) StreamRequest {
	path := fmt.Sprintf("/api/discussions/%d/run", id)
	if singleRound {
		path += "?single_round=true"
	}
	return StreamRequest{Method: http.MethodPost, URL: c.baseURL + path}
}

// SummarizeRequest builds the streaming summarization request.
func (c *Client) SummarizeRequest(id int) StreamRequest {
	return StreamRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + fmt.Sprintf("/api/discussions/%d/summarize", id),
	}
}

// ObserverChat builds the streaming observer-chat request.
func (c *Client) ObserverChat(id int, req ObserverChatRequest) (StreamRequest, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return StreamRequest{}, fmt.Errorf("api: marshal observer request: %w", err)
	}
	return StreamRequest{
		Method: http.MethodPost,
		URL:    c.baseURL + fmt.Sprintf("/api/discussions/%d/observer/chat", id),
		Body:   data,
	}, nil
}

// StreamRequest describes a streaming endpoint invocation. The stream
// package turns it into a live connection.
type StreamRequest struct {
	Method string
	URL    string
	Body   []byte
}
