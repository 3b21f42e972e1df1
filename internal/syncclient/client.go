package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
)

// APIError is a non-2xx response. It unwraps to the matching domain sentinel,
// so errors.Is(err, domain.ErrStaleQuestion) works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
	Result  *domain.AnswerResult
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrorForCode(e.Code)
}

// Client calls the session REST API as one actor.
type Client struct {
	baseURL string
	http    *http.Client
	header  http.Header
}

type ClientOption func(*Client)

// WithToken authenticates with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.header.Set("Authorization", "Bearer "+token) }
}

// WithDevActor uses the dev-mode identity headers.
func WithDevActor(actor domain.Actor) ClientOption {
	return func(c *Client) {
		c.header.Set(auth.HeaderUserID, actor.UserID)
		c.header.Set(auth.HeaderRole, string(actor.Role))
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		header:  http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Header returns the identity headers, for the websocket dial.
func (c *Client) Header() http.Header {
	return c.header.Clone()
}

// SignalURL is the websocket endpoint for sessionID's room.
func (c *Client) SignalURL(sessionID string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?sessionId=" + url.QueryEscape(sessionID)
}

func (c *Client) FetchSession(ctx context.Context, sessionID string) (domain.SessionView, error) {
	var view domain.SessionView
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &view)
	return view, err
}

func (c *Client) CreateSession(ctx context.Context, quizID string) (domain.SessionCreated, error) {
	var created domain.SessionCreated
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"quizId": quizID}, &created)
	return created, err
}

func (c *Client) Join(ctx context.Context, accessCode, displayName string) (domain.Joined, error) {
	var joined domain.Joined
	err := c.do(ctx, http.MethodPost, "/api/sessions/join", map[string]string{
		"accessCode":  accessCode,
		"displayName": displayName,
	}, &joined)
	return joined, err
}

func (c *Client) Start(ctx context.Context, sessionID string) (domain.SessionView, error) {
	return c.lifecycle(ctx, sessionID, "start")
}

func (c *Client) Advance(ctx context.Context, sessionID string) (domain.SessionView, error) {
	return c.lifecycle(ctx, sessionID, "advance")
}

func (c *Client) End(ctx context.Context, sessionID string) (domain.SessionView, error) {
	return c.lifecycle(ctx, sessionID, "end")
}

func (c *Client) Leaderboard(ctx context.Context, sessionID string) (domain.Leaderboard, error) {
	var lb domain.Leaderboard
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/leaderboard"), nil, &lb)
	return lb, err
}

// SubmitAnswer is idempotent from the caller's side: a DuplicateAnswer reply
// means an earlier attempt was recorded, and its result is returned as success.
func (c *Client) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	body := struct {
		ParticipantID string `json:"participantId"`
		QuestionID    string `json:"questionId"`
		domain.AnswerContent
		ResponseTime int64 `json:"responseTime"`
	}{sub.ParticipantID, sub.QuestionID, sub.Content, sub.ResponseTime}

	var result domain.AnswerResult
	err := c.do(ctx, http.MethodPost, sessionPath(sub.SessionID, "/answer"), body, &result)
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(err, domain.ErrDuplicateAnswer) && apiErr.Result != nil {
		return *apiErr.Result, nil
	}
	return result, err
}

func (c *Client) lifecycle(ctx context.Context, sessionID, op string) (domain.SessionView, error) {
	var view domain.SessionView
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/"+op), nil, &view)
	return view, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error   string               `json:"error"`
			Message string               `json:"message"`
			Result  *domain.AnswerResult `json:"result"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Error, Message: e.Message, Result: e.Result}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}
