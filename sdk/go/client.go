package voxsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal VoxCollect HTTP API client. Responses arrive in a
// {"success": true, "data": ...} envelope; the client unwraps data.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	UserID      string // legacy X-User-Id header, used when no token is set
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	PromptText string  `json:"prompt_text"`
	AssignedTo *string `json:"assigned_to"`
	Priority   int     `json:"priority"`
}

// Contribution represents a submission against a task.
type Contribution struct {
	ID                string  `json:"id"`
	TaskID            string  `json:"task_id"`
	UserID            string  `json:"user_id"`
	Status            string  `json:"status"`
	StorageURL        *string `json:"storage_url"`
	TranscriptionText *string `json:"transcription_text"`
	TranslationText   *string `json:"translation_text"`
	RejectionReason   *string `json:"rejection_reason"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// BatchReviewResult reports per-item outcomes of a batch review.
type BatchReviewResult struct {
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
	Errors       []struct {
		ContributionID string `json:"contribution_id"`
		Reason         string `json:"reason"`
	} `json:"errors"`
}

// ReviewDecision is one item of a batch review.
type ReviewDecision struct {
	ContributionID string `json:"contribution_id"`
	Approve        bool   `json:"approve"`
	Rating         *int   `json:"rating,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task in the client's project.
func (c *Client) CreateTask(ctx context.Context, taskType, promptText string) (Task, error) {
	body := map[string]any{
		"type":        taskType,
		"prompt_text": promptText,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp, err
}

// ListTasks lists tasks in the client's project, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := c.projectPath("tasks")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// TransitionTask changes a task's status.
func (c *Client) TransitionTask(ctx context.Context, taskID, to, note string) (Task, error) {
	body := map[string]any{"to": to, "note": note}
	var resp Task
	endpoint := fmt.Sprintf("v1/tasks/%s/transition", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SubmitRecording uploads an audio contribution against a task.
func (c *Client) SubmitRecording(ctx context.Context, taskID string, audio []byte, contentType string) (Contribution, error) {
	body := map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
		"content_type": contentType,
	}
	var resp Contribution
	endpoint := fmt.Sprintf("v1/tasks/%s/contributions", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SubmitText submits a transcription or translation contribution.
func (c *Client) SubmitText(ctx context.Context, taskID string, transcription, translation *string) (Contribution, error) {
	body := map[string]any{
		"transcription_text": transcription,
		"translation_text":   translation,
	}
	var resp Contribution
	endpoint := fmt.Sprintf("v1/tasks/%s/contributions", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Approve approves a contribution.
func (c *Client) Approve(ctx context.Context, contributionID string, rating *int, comment string) (Contribution, error) {
	body := map[string]any{"rating": rating, "comment": comment}
	var resp Contribution
	endpoint := fmt.Sprintf("v1/contributions/%s/approve", url.PathEscape(contributionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Reject rejects a contribution with a reason.
func (c *Client) Reject(ctx context.Context, contributionID, reason string) (Contribution, error) {
	body := map[string]any{"reason": reason}
	var resp Contribution
	endpoint := fmt.Sprintf("v1/contributions/%s/reject", url.PathEscape(contributionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// BatchReview applies several review decisions in one call.
func (c *Client) BatchReview(ctx context.Context, decisions []ReviewDecision) (BatchReviewResult, error) {
	body := map[string]any{"decisions": decisions}
	var resp BatchReviewResult
	err := c.do(ctx, http.MethodPost, "v1/reviews/batch", body, &resp)
	return resp, err
}

// Events returns recent events for the client's project.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events?project_id=" + url.QueryEscape(c.ProjectID)
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		return nil
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v1/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
