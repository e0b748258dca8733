package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pixsync/internal/tasks"
)

// Client talks to the backend task and wallet endpoints. The backend owns
// all real work; every call here is a read or a submission.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type ListParams struct {
	UserID string
	Action string
	Page   int
	Size   int
}

type SubmitRequest struct {
	UserID string         `json:"user_id"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

type WalletBalance struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

type PointsPrecheck struct {
	Action     string `json:"action"`
	Cost       int64  `json:"cost"`
	Balance    int64  `json:"balance"`
	Sufficient bool   `json:"sufficient"`
}

// GetTaskDetail loads one task. isPolling asks the backend for the
// lightweight variant (status and output references only).
func (c *Client) GetTaskDetail(ctx context.Context, taskID string, isPolling bool) (tasks.Task, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return tasks.Task{}, fmt.Errorf("task id is required")
	}
	endpoint := c.baseURL + "/api/task/v1/tasks/" + url.PathEscape(taskID)
	if isPolling {
		endpoint += "?light=1"
	}
	var out tasks.Task
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return tasks.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return out, nil
}

func (c *Client) ListTasks(ctx context.Context, params ListParams) ([]tasks.Task, error) {
	q := url.Values{}
	if userID := strings.TrimSpace(params.UserID); userID != "" {
		q.Set("user_id", userID)
	}
	if action := strings.TrimSpace(params.Action); action != "" {
		q.Set("action", action)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Size > 0 {
		q.Set("size", strconv.Itoa(params.Size))
	}
	endpoint := c.baseURL + "/api/task/v1/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var out struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out.Tasks, nil
}

func (c *Client) SubmitTask(ctx context.Context, req SubmitRequest) (tasks.Task, error) {
	if strings.TrimSpace(req.Action) == "" {
		return tasks.Task{}, fmt.Errorf("action is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return tasks.Task{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/task/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return tasks.Task{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("submit task: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return tasks.Task{}, fmt.Errorf("submit task failed with status: %d", res.StatusCode)
	}
	var out tasks.Task
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return tasks.Task{}, err
	}
	return out, nil
}

func (c *Client) GetPointsBalance(ctx context.Context, userID string) (WalletBalance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return WalletBalance{}, fmt.Errorf("user id is required")
	}
	var out WalletBalance
	endpoint := c.baseURL + "/api/wallet/v1/balance?user_id=" + url.QueryEscape(userID)
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return WalletBalance{}, fmt.Errorf("get balance: %w", err)
	}
	return out, nil
}

// PrecheckPoints asks whether the user's balance covers an action before a
// submit. The backend remains the authority; this only pre-empts an obvious
// rejection.
func (c *Client) PrecheckPoints(ctx context.Context, userID, action string) (PointsPrecheck, error) {
	userID = strings.TrimSpace(userID)
	action = strings.TrimSpace(action)
	if userID == "" || action == "" {
		return PointsPrecheck{}, fmt.Errorf("user id and action are required")
	}
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("action", action)
	var out PointsPrecheck
	if err := c.getJSON(ctx, c.baseURL+"/api/wallet/v1/precheck?"+q.Encode(), &out); err != nil {
		return PointsPrecheck{}, fmt.Errorf("precheck points: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status: %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
