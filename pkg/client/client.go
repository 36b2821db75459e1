package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/code-review-quest/internal/evaluation"
	"github.com/terra-clan/code-review-quest/internal/models"
)

// Client is a Go SDK for the code-review-quest API
type Client struct {
	baseURL    string
	token      string
	guestID    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken authenticates every request as a registered user
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithGuest plays every request as the given guest
func WithGuest(handle string) Option {
	return func(c *Client) {
		c.guestID = handle
	}
}

// NewClient creates a new code-review-quest client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a failure reported in the response envelope
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

type envelope[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Error   *APIError `json:"error"`
}

// SubmitResult is the graded outcome of a submission
type SubmitResult struct {
	evaluation.Result
	SessionID string          `json:"session_id"`
	NewBadges []models.Award  `json:"newly_earned_badges"`
	Session   *models.Session `json:"session"`
}

// Profile is the caller's profile; exactly one of User and Guest is set
type Profile struct {
	Kind  string               `json:"kind"`
	User  *models.UserProfile  `json:"user,omitempty"`
	Guest *models.GuestProfile `json:"guest,omitempty"`
}

// GuestUpdate is the result of UpdateGuest
type GuestUpdate struct {
	Guest           *models.GuestProfile `json:"guest"`
	NewAchievements []models.Award       `json:"new_achievements"`
}

// StartSession starts a timed session on a random problem
func (c *Client) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.StartSessionResponse, error) {
	return call[*models.StartSessionResponse](ctx, c, http.MethodPost, "/api/v1/sessions", req)
}

// GetSession returns a session and its remaining time
func (c *Client) GetSession(ctx context.Context, id string) (*models.SessionStatusResponse, error) {
	return call[*models.SessionStatusResponse](ctx, c, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil)
}

// Submit reports the lines believed to contain bugs
func (c *Client) Submit(ctx context.Context, sessionID string, bugs []models.BugReport) (*SubmitResult, error) {
	return call[*SubmitResult](ctx, c, http.MethodPost,
		"/api/v1/sessions/"+url.PathEscape(sessionID)+"/submit", models.SubmitRequest{Bugs: bugs})
}

// CreateGuest opens a new guest session
func (c *Client) CreateGuest(ctx context.Context, nickname string) (*models.CreateGuestResponse, error) {
	return call[*models.CreateGuestResponse](ctx, c, http.MethodPost, "/api/v1/guests",
		models.CreateGuestRequest{Nickname: nickname})
}

// GetGuestProfile returns the public profile of a guest
func (c *Client) GetGuestProfile(ctx context.Context, handle string) (*models.GuestProfile, error) {
	return call[*models.GuestProfile](ctx, c, http.MethodGet, "/api/v1/guests/"+url.PathEscape(handle)+"/profile", nil)
}

// UpdateGuest applies a partial update to a guest
func (c *Client) UpdateGuest(ctx context.Context, handle string, req models.UpdateGuestRequest) (*GuestUpdate, error) {
	return call[*GuestUpdate](ctx, c, http.MethodPut, "/api/v1/guests/"+url.PathEscape(handle), req)
}

// DeleteGuest ends a guest session and returns its final stats
func (c *Client) DeleteGuest(ctx context.Context, handle string) (*models.GuestProfile, error) {
	data, err := call[struct {
		FinalStats *models.GuestProfile `json:"final_stats"`
	}](ctx, c, http.MethodDelete, "/api/v1/guests/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, err
	}
	return data.FinalStats, nil
}

// ListProblems lists the public view of the catalog, optionally filtered
func (c *Client) ListProblems(ctx context.Context, difficulty models.Difficulty) ([]*models.PublicProblem, error) {
	path := "/api/v1/problems"
	if difficulty != "" {
		path += "?difficulty=" + url.QueryEscape(string(difficulty))
	}
	data, err := call[struct {
		Problems []*models.PublicProblem `json:"problems"`
	}](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return data.Problems, nil
}

// ListBadges lists every badge the engine can award
func (c *Client) ListBadges(ctx context.Context) ([]models.Badge, error) {
	data, err := call[struct {
		Badges []models.Badge `json:"badges"`
	}](ctx, c, http.MethodGet, "/api/v1/badges", nil)
	if err != nil {
		return nil, err
	}
	return data.Badges, nil
}

// GetProfile returns the caller's profile
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	return call[*Profile](ctx, c, http.MethodGet, "/api/v1/profile", nil)
}

// Leaderboard returns the top registered users
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	path := "/api/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	data, err := call[struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return data.Leaderboard, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := call[map[string]string](ctx, c, http.MethodGet, "/health", nil)
	return err
}

func call[T any](ctx context.Context, c *Client, method, path string, payload any) (T, error) {
	var zero T

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return zero, err
	}

	var result envelope[T]
	if err := json.Unmarshal(resp, &result); err != nil {
		return zero, fmt.Errorf("HTTP %d: failed to unmarshal response: %w", status, err)
	}

	if !result.Success {
		if result.Error == nil {
			return zero, &APIError{Status: status, Code: "unknown", Message: http.StatusText(status)}
		}
		result.Error.Status = status
		return zero, result.Error
	}

	return result.Data, nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.guestID != "" {
		req.Header.Set("X-Guest-ID", c.guestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
