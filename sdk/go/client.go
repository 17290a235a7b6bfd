package agencysdk

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

// SessionCookie is the cookie the portal uses for browser sessions.
const SessionCookie = "session-token"

// Client is a minimal agency portal HTTP API client. Credentials are tried in order:
// BearerToken, APIKey, then the session token captured by Login.
type Client struct {
	BaseURL      string
	APIKey       string
	BearerToken  string
	SessionToken string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path, e.g.
// http://localhost:8080/api.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User is the API user model (partial).
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleName string `json:"roleName,omitempty"`
}

// Task is the API task model (partial).
type Task struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	ClientID             string  `json:"clientId"`
	AssignmentID         *string `json:"assignmentId,omitempty"`
	AssignedToID         *string `json:"assignedToId,omitempty"`
	Status               string  `json:"status"`
	Priority             string  `json:"priority"`
	DueDate              *string `json:"dueDate,omitempty"`
	IdealDurationMinutes *int    `json:"idealDurationMinutes,omitempty"`
}

// Assignment binds a client to a template, with the tasks generated for it.
type Assignment struct {
	ID         string  `json:"id"`
	ClientID   string  `json:"clientId"`
	TemplateID *string `json:"templateId,omitempty"`
	Status     string  `json:"status"`
	AssignedAt string  `json:"assignedAt"`
	Tasks      []Task  `json:"tasks,omitempty"`
}

// TaskAgent pairs a task with the agent it goes to.
type TaskAgent struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

// Distribution is the result of a distribute call.
type Distribution struct {
	Message       string `json:"message"`
	AssignedTasks int    `json:"assignedTasks"`
	Assignments   []struct {
		TaskID  string `json:"taskId"`
		AgentID string `json:"agentId"`
		Task    Task   `json:"task"`
	} `json:"assignments"`
}

// Activity is one activity log entry.
type Activity struct {
	ID         int64          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	UserID     string         `json:"userId,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  string         `json:"timestamp"`
	UserName   string         `json:"userName,omitempty"`
	UserEmail  string         `json:"userEmail,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login signs in and keeps the session token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body := map[string]any{"email": email, "password": password}
	var resp struct {
		User      User   `json:"user"`
		ExpiresAt string `json:"expiresAt"`
	}
	res, err := c.send(ctx, http.MethodPost, "auth/login", body, &resp)
	if err != nil {
		return User{}, err
	}
	for _, ck := range res.Cookies() {
		if ck.Name == SessionCookie {
			c.SessionToken = ck.Value
		}
	}
	if c.SessionToken == "" {
		return User{}, fmt.Errorf("login response carried no %s cookie", SessionCookie)
	}
	return resp.User, nil
}

// CreateAssignment binds a client to a template and returns the generated tasks.
func (c *Client) CreateAssignment(ctx context.Context, clientID, templateID string, agentIDs []string) (Assignment, error) {
	body := map[string]any{"clientId": clientID}
	if templateID != "" {
		body["templateId"] = templateID
	}
	if len(agentIDs) > 0 {
		body["agentIds"] = agentIDs
	}
	var resp Assignment
	_, err := c.send(ctx, http.MethodPost, "assignments", body, &resp)
	return resp, err
}

// Distribute assigns tasks to agents in one batch.
func (c *Client) Distribute(ctx context.Context, clientID string, assignments []TaskAgent) (Distribution, error) {
	body := map[string]any{"clientId": clientID, "assignments": assignments}
	var resp Distribution
	_, err := c.send(ctx, http.MethodPost, "tasks/distribute", body, &resp)
	return resp, err
}

// RecentActivity returns the latest activity entries, newest first. Empty filters are ignored.
func (c *Client) RecentActivity(ctx context.Context, entityType, entityID string) ([]Activity, error) {
	q := url.Values{}
	if entityType != "" {
		q.Set("entityType", entityType)
	}
	if entityID != "" {
		q.Set("entityId", entityID)
	}
	endpoint := "activity"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Activity
	_, err := c.send(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any, out any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.SessionToken != "":
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: c.SessionToken})
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return resp, apiErr
	}
	if out != nil {
		return resp, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
