package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestGetTaskDetail_PollingUsesLightVariant(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"task_id": "abc123", "status": "running"})
	})

	task, err := c.GetTaskDetail(context.Background(), "abc123", true)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotPath != "/api/task/v1/tasks/abc123" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "light=1" {
		t.Fatalf("query = %q", gotQuery)
	}
	if task.Status != "running" {
		t.Fatalf("status = %q", task.Status)
	}

	if _, err := c.GetTaskDetail(context.Background(), "abc123", false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotQuery != "" {
		t.Fatalf("non-polling query = %q", gotQuery)
	}
}

func TestGetTaskDetail_RequiresID(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.GetTaskDetail(context.Background(), "  ", true); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestListTasks_EncodesFilters(t *testing.T) {
	var gotQuery string
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tasks": []map[string]any{{"task_id": "t1", "status": "pending"}},
		})
	})

	list, err := c.ListTasks(context.Background(), ListParams{UserID: "u1", Action: "upscale", Page: 2, Size: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].TaskID != "t1" {
		t.Fatalf("list = %+v", list)
	}
	want := "action=upscale&page=2&size=20&user_id=u1"
	if gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
}

func TestSubmitTask_PostsJSON(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %q", r.Method)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("body: %v", err)
		}
		if req.Action != "seamless-tile" {
			t.Fatalf("action = %q", req.Action)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"task_id": "new1", "status": "pending"})
	})

	task, err := c.SubmitTask(context.Background(), SubmitRequest{UserID: "u1", Action: "seamless-tile"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if task.TaskID != "new1" {
		t.Fatalf("task = %+v", task)
	}
}

func TestClient_SurfacesHTTPErrors(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	if _, err := c.GetTaskDetail(context.Background(), "t1", true); err == nil {
		t.Fatal("expected error for 502")
	}
	if _, err := c.GetPointsBalance(context.Background(), "u1"); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestPrecheckPoints(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/wallet/v1/precheck" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(PointsPrecheck{Action: "upscale", Cost: 10, Balance: 120, Sufficient: true})
	})
	pre, err := c.PrecheckPoints(context.Background(), "u1", "upscale")
	if err != nil {
		t.Fatalf("precheck: %v", err)
	}
	if !pre.Sufficient || pre.Cost != 10 {
		t.Fatalf("precheck = %+v", pre)
	}
}
