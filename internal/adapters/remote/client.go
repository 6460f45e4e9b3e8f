package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	"github.com/google/uuid"
)

const (
	queueJoinPath         = "/queue/join"
	sessionsPath          = "/sessions"
	maxResponseBytes      = 1 << 20
	defaultRequestTimeout = 15 * time.Second
)

// Client talks HTTP+JSON to the arena service. Payloads (initial state,
// observations, action acks) are passed through as raw JSON; the client only
// interprets the matchmaking status and the game-end signal.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Credentials    domain.Credentials
}

var _ ports.GameClient = (*Client)(nil)

type joinResponse struct {
	Status    string          `json:"status"`
	SessionID string          `json:"sessionId"`
	RunID     string          `json:"runId"`
	Init      json.RawMessage `json:"init"`
}

type observationsResponse struct {
	Observations []json.RawMessage `json:"observations"`
	Ended        bool              `json:"ended"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) JoinQueue(ctx context.Context, creds domain.Credentials) (ports.MatchResult, error) {
	if err := creds.Validate(); err != nil {
		return ports.MatchResult{}, err
	}

	body, err := json.Marshal(map[string]string{"agentId": creds.AgentName})
	if err != nil {
		return ports.MatchResult{}, fmt.Errorf("encode queue join request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, queueJoinPath, creds.APIKey, body)
	if err != nil {
		return ports.MatchResult{}, fmt.Errorf("join queue: %w", err)
	}

	var payload joinResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return ports.MatchResult{}, fmt.Errorf("decode queue join response: %w", err)
	}

	switch payload.Status {
	case "pending":
		return ports.MatchResult{}, nil
	case "started":
		if payload.SessionID == "" {
			return ports.MatchResult{}, errors.New("queue join response missing session id")
		}
		return ports.MatchResult{
			Started:   true,
			SessionID: domain.SessionID(payload.SessionID),
			RunID:     payload.RunID,
			Init:      payload.Init,
		}, nil
	default:
		return ports.MatchResult{}, fmt.Errorf("unexpected matchmaking status %q", payload.Status)
	}
}

func (c *Client) PollObservations(ctx context.Context, id domain.SessionID, since int64) (ports.PollResult, error) {
	if err := c.Credentials.Validate(); err != nil {
		return ports.PollResult{}, err
	}

	path := sessionsPath + "/" + url.PathEscape(string(id)) + "/observations"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}

	data, err := c.do(ctx, http.MethodGet, path, c.Credentials.APIKey, nil)
	if err != nil {
		return ports.PollResult{}, fmt.Errorf("poll observations: %w", err)
	}

	var payload observationsResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return ports.PollResult{}, fmt.Errorf("decode observations response: %w", err)
	}

	return ports.PollResult{Observations: payload.Observations, Ended: payload.Ended}, nil
}

func (c *Client) SubmitAction(ctx context.Context, id domain.SessionID, action domain.Action) (json.RawMessage, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if err := c.Credentials.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	path := sessionsPath + "/" + url.PathEscape(string(id)) + "/actions"
	data, err := c.do(ctx, http.MethodPost, path, c.Credentials.APIKey, body)
	if err != nil {
		return nil, fmt.Errorf("submit action: %w", err)
	}

	return json.RawMessage(data), nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body []byte) ([]byte, error) {
	endpoint, err := buildURL(c.BaseURL, path)
	if err != nil {
		return nil, err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &domain.RemoteFailure{Retryable: true, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.RemoteFailure{Retryable: true, Message: err.Error()}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyHTTPFailure(resp.StatusCode, data)
	}

	return data, nil
}

// classifyHTTPFailure maps status codes onto the retry taxonomy: 429 and 5xx
// are transient, everything else 4xx is a server-side rejection.
func classifyHTTPFailure(statusCode int, body []byte) error {
	message := http.StatusText(statusCode)
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	retryable := statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError

	return &domain.RemoteFailure{Retryable: retryable, StatusCode: statusCode, Message: message}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func buildURL(baseURL, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("arena base url is empty")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse arena base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("arena base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("arena base url host is required")
	}

	return strings.TrimSuffix(parsed.String(), "/") + path, nil
}
