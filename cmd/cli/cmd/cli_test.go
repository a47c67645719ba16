package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agenthub/pkg/api"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return stdout.String()
}

func TestSubmitCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/task" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req api.CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "print hello" {
			t.Errorf("text = %q, want 'print hello'", req.Text)
		}
		json.NewEncoder(w).Encode(api.CreateTaskResponse{TaskID: 7, Status: "created"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "submit", "print", "hello")
	if !strings.Contains(output, "Task ID: 7") {
		t.Errorf("expected task id in output, got: %s", output)
	}
}

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	percent := 100.0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/task/42") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		resp := api.GetTaskResponse{
			Task: api.TaskResponse{
				ID: 42, AgentID: "agent1", Title: "Task: print hello",
				Status: "completed", Response: "hello",
				CreatedAt: time.Now(), UpdatedAt: time.Now(),
			},
			Progress: []api.ProgressResponse{
				{ID: 1, TaskID: 42, AgentID: "agent1", Message: "task picked up", Timestamp: time.Now()},
				{ID: 2, TaskID: 42, AgentID: "agent1", ProgressPercent: &percent, Message: "completed", Timestamp: time.Now()},
			},
			Artifacts: []api.ArtifactResponse{
				{ID: 3, Bucket: "screenshots", ObjectPath: "agent1/x.png", SizeBytes: 99},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "status", "42")
	for _, want := range []string{"Task 42 [completed]", "hello", "task picked up", "agent1/x.png"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestStatusCommand_InvalidID(t *testing.T) {
	resetViper()
	output := runCommand(t, "status", "not-a-number")
	if !strings.Contains(output, "Invalid task id") {
		t.Errorf("expected invalid id message, got: %s", output)
	}
}

func TestTasksCommand_Filters(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "pending" {
			t.Errorf("status query = %q, want pending", r.URL.Query().Get("status"))
		}
		json.NewEncoder(w).Encode(api.ListTasksResponse{
			Tasks: []api.TaskResponse{{ID: 1, AgentID: "agent2", Status: "pending", Title: "t"}},
			Total: 1,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "tasks", "--status", "pending")
	if !strings.Contains(output, "pending") || !strings.Contains(output, "agent2") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestCancelCommand_Error(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "task 5 already terminal", Code: "409"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "cancel", "5")
	if !strings.Contains(output, "Cancel failed (409)") {
		t.Errorf("expected conflict message, got: %s", output)
	}
}

func TestLiveCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		percent := 50.0
		p := api.ProgressResponse{ID: 1, TaskID: 3, AgentID: "agent1", ProgressPercent: &percent, Message: "working...", Timestamp: time.Now()}
		json.NewEncoder(w).Encode(api.AgentsLiveResponse{
			GeneratedAt: time.Now(),
			Agents: []api.AgentLiveState{
				{AgentID: "agent1", LatestProgress: &p, Progress: []api.ProgressResponse{p}},
				{AgentID: "agent2"},
			},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := runCommand(t, "live")
	if !strings.Contains(output, "== agent1") || !strings.Contains(output, "working...") {
		t.Errorf("unexpected output: %s", output)
	}
	if !strings.Contains(output, "(no activity)") {
		t.Errorf("expected idle marker for agent2, got: %s", output)
	}
}
