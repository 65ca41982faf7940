package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/content-pipeline/internal/api/dto"
	"github.com/lumilearn/content-pipeline/internal/audit"
	"github.com/lumilearn/content-pipeline/internal/cache"
	"github.com/lumilearn/content-pipeline/internal/events"
	"github.com/lumilearn/content-pipeline/internal/metrics"
	"github.com/lumilearn/content-pipeline/internal/optimize"
	"github.com/lumilearn/content-pipeline/internal/scheduler"
	"github.com/lumilearn/content-pipeline/internal/store"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

type testServer struct {
	router *gin.Engine
	sched  *scheduler.Scheduler
	store  *store.Memory
	hub    *events.Hub
	reg    *metrics.Registry
}

// newTestServer wires the full pipeline on in-memory backends. When start is
// false the worker pool stays idle, so submitted jobs remain queued and the
// cancel and wait paths can be exercised deterministically.
func newTestServer(t *testing.T, start bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		store: store.NewMemory(256),
		hub:   events.NewHub(),
		reg:   metrics.NewRegistry(),
	}

	logger := slog.New(slog.DiscardHandler)
	ts.sched = scheduler.New(scheduler.Config{Workers: 2}, scheduler.Options{
		Logger:   logger,
		Engine:   validation.NewEngine(validation.Budgets{}, validation.NewPolicy(validation.ModeStrict, nil)),
		Packager: optimize.NewPackager(0),
		Cache:    cache.NewMemory(64, 0),
		Store:    ts.store,
		Hub:      ts.hub,
		Audit:    audit.NewRecording(),
		Metrics:  ts.reg,
	})
	if start {
		ts.sched.Start(context.Background())
	}
	t.Cleanup(ts.sched.Stop)

	h := NewPipelineHandler(&Dependencies{
		Logger:        logger,
		Scheduler:     ts.sched,
		Store:         ts.store,
		Hub:           ts.hub,
		Metrics:       ts.reg,
		Health:        metrics.DefaultThresholds(),
		MaxBatchItems: 10,
		MaxStatusWait: 5 * time.Second,
	})

	r := gin.New()
	r.GET("/health", h.GetHealth)
	v1 := r.Group("/api/v1")
	v1.POST("/content", h.SubmitContent)
	v1.POST("/content/batch", h.SubmitBatch)
	v1.GET("/jobs", h.ListJobs)
	v1.GET("/jobs/:job_id", h.GetJob)
	v1.GET("/jobs/:job_id/events", h.StreamJobEvents)
	v1.POST("/jobs/:job_id/cancel", h.CancelJob)
	v1.DELETE("/jobs/:job_id", h.DeleteJob)
	v1.GET("/metrics", h.GetMetrics)
	ts.router = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func quizBody(title string) map[string]any {
	return map[string]any{
		"content": map[string]any{
			"title": title,
			"questions": []map[string]any{{
				"id":     "q1",
				"prompt": "What is 1/2 + 1/4?",
				"options": []map[string]any{
					{"id": "a", "text": "3/4", "correct": true},
					{"id": "b", "text": "2/6", "correct": false},
				},
			}},
		},
		"contentType": "quiz",
		"metadata":    map[string]any{"userId": "user-1", "priority": "normal"},
	}
}

func TestSubmitContent_Accepted(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("fractions"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "/api/v1/jobs/"+resp.JobID, resp.StatusURL)
	assert.False(t, resp.EstimatedCompletion.IsZero())
}

func TestSubmitContent_BindErrors(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing content",
			body: map[string]any{"contentType": "quiz", "metadata": map[string]any{"userId": "u"}},
		},
		{
			name: "missing content type",
			body: map[string]any{"content": map[string]any{"title": "x"}, "metadata": map[string]any{"userId": "u"}},
		},
		{
			name: "unknown content type",
			body: map[string]any{
				"content":     map[string]any{"title": "x"},
				"contentType": "podcast",
				"metadata":    map[string]any{"userId": "u"},
			},
		},
		{
			name: "missing user id",
			body: map[string]any{
				"content":     map[string]any{"title": "x"},
				"contentType": "quiz",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/content", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSubmitContent_MalformedPayloadRejected(t *testing.T) {
	ts := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/content",
		strings.NewReader(`{"content": {"title": , "contentType": "quiz"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitContent_CacheHitReturnsCompleted(t *testing.T) {
	ts := newTestServer(t, true)

	first := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("cached"))
	require.Equal(t, http.StatusAccepted, first.Code)

	var accepted dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &accepted))
	waitCompleted(t, ts, accepted.JobID)

	second := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("cached"))
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var resp dto.CompletedResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Valid)
	assert.True(t, resp.Result.FromCache)
}

func TestSubmitBatch_MixedOutcomes(t *testing.T) {
	ts := newTestServer(t, true)

	items := []map[string]any{
		quizBody("batch-a"),
		quizBody("batch-b"),
		{
			// Unknown content type: rejected without touching its siblings.
			"content":     map[string]any{"title": "x"},
			"contentType": "podcast",
		},
		quizBody("batch-c"),
	}
	w := ts.do(t, http.MethodPost, "/api/v1/content/batch", map[string]any{
		"items":         items,
		"batchMetadata": map[string]any{"userId": "batch-user", "priority": "high"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 4)

	assert.Equal(t, 4, resp.Summary.Total)
	assert.Equal(t, 3, resp.Summary.Accepted)
	assert.Equal(t, 1, resp.Summary.Rejected)

	assert.Equal(t, "rejected", resp.Items[2].Status)
	assert.Contains(t, resp.Items[2].Error, "unknown content type")
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, "processing", resp.Items[i].Status, "item %d", i)
		assert.NotEmpty(t, resp.Items[i].JobID, "item %d", i)
		assert.Equal(t, i, resp.Items[i].Index)
	}
}

func TestSubmitBatch_Limits(t *testing.T) {
	ts := newTestServer(t, true)

	t.Run("empty batch", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/content/batch", map[string]any{
			"items": []map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized batch", func(t *testing.T) {
		items := make([]map[string]any, 11)
		for i := range items {
			items[i] = quizBody(fmt.Sprintf("over-%d", i))
		}
		w := ts.do(t, http.MethodPost, "/api/v1/content/batch", map[string]any{"items": items})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "exceeds the maximum")
	})
}

func TestGetJob_WaitReturnsTerminalState(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("waited"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	poll := ts.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID+"?wait=3s", nil)
	require.Equal(t, http.StatusOK, poll.Code, poll.Body.String())

	var status dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.State)
	require.NotNil(t, status.Result)
	assert.True(t, status.Result.Valid)
	require.NotNil(t, status.CompletedAt)
}

func TestGetJob_WaitWindowExpires(t *testing.T) {
	// Workers never start, so the job stays queued past the wait window.
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("stuck"))
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	start := time.Now()
	poll := ts.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID+"?wait=100ms", nil)
	require.Equal(t, http.StatusOK, poll.Code)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	var status dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &status))
	assert.Equal(t, "queued", status.State)
}

func TestGetJob_Errors(t *testing.T) {
	ts := newTestServer(t, true)

	t.Run("invalid uuid", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/jobs/0c5ee90d-7765-4af1-8d1a-a0a02ba1c02f", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid wait", func(t *testing.T) {
		ts2 := newTestServer(t, true)
		w := ts2.do(t, http.MethodPost, "/api/v1/content", quizBody("waitfmt"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

		poll := ts2.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID+"?wait=banana", nil)
		assert.Equal(t, http.StatusBadRequest, poll.Code)
	})
}

func TestListJobs_FilterAndPaginate(t *testing.T) {
	ts := newTestServer(t, true)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody(fmt.Sprintf("list-%d", i)))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
		ids = append(ids, accepted.JobID)
	}
	for _, id := range ids {
		waitCompleted(t, ts, id)
	}

	var first dto.ListJobsResponse
	w := ts.do(t, http.MethodGet, "/api/v1/jobs?page_size=3&state=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Len(t, first.Jobs, 3)
	require.NotEmpty(t, first.NextCursor)

	var second dto.ListJobsResponse
	w = ts.do(t, http.MethodGet, "/api/v1/jobs?page_size=3&state=completed&cursor="+url.QueryEscape(first.NextCursor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Len(t, second.Jobs, 2)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, j := range append(first.Jobs, second.Jobs...) {
		assert.False(t, seen[j.JobID], "job %s listed twice", j.JobID)
		seen[j.JobID] = true
	}

	t.Run("bad cursor", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/v1/jobs?cursor=%21%21", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCancelJob(t *testing.T) {
	t.Run("queued job is canceled", func(t *testing.T) {
		ts := newTestServer(t, false)

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("cancel-me"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

		cancel := ts.do(t, http.MethodPost, "/api/v1/jobs/"+accepted.JobID+"/cancel", nil)
		require.Equal(t, http.StatusOK, cancel.Code, cancel.Body.String())

		var status dto.JobStatusResponse
		require.NoError(t, json.Unmarshal(cancel.Body.Bytes(), &status))
		assert.Equal(t, "rejected", status.State)
	})

	t.Run("terminal job conflicts", func(t *testing.T) {
		ts := newTestServer(t, true)

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("done-already"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
		waitCompleted(t, ts, accepted.JobID)

		cancel := ts.do(t, http.MethodPost, "/api/v1/jobs/"+accepted.JobID+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, cancel.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		ts := newTestServer(t, true)
		w := ts.do(t, http.MethodPost, "/api/v1/jobs/7d7a1f2e-68a5-44b0-a345-c5b70e65a355/cancel", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteJob(t *testing.T) {
	t.Run("terminal job is deleted", func(t *testing.T) {
		ts := newTestServer(t, true)

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("delete-me"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
		waitCompleted(t, ts, accepted.JobID)

		del := ts.do(t, http.MethodDelete, "/api/v1/jobs/"+accepted.JobID, nil)
		require.Equal(t, http.StatusNoContent, del.Code)

		get := ts.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID, nil)
		assert.Equal(t, http.StatusNotFound, get.Code)
	})

	t.Run("live job conflicts", func(t *testing.T) {
		ts := newTestServer(t, false)

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("still-queued"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

		del := ts.do(t, http.MethodDelete, "/api/v1/jobs/"+accepted.JobID, nil)
		assert.Equal(t, http.StatusConflict, del.Code)
	})
}

func TestGetMetricsAndHealth(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("measured"))
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	waitCompleted(t, ts, accepted.JobID)

	mw := ts.do(t, http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, mw.Code)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(mw.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Submissions)
	assert.Equal(t, int64(1), snap.CompletedValid)

	hw := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, hw.Code)
	assert.Contains(t, hw.Body.String(), `"healthy":true`)
}

func TestStreamJobEvents(t *testing.T) {
	t.Run("invalid uuid", func(t *testing.T) {
		ts := newTestServer(t, true)
		w := ts.do(t, http.MethodGet, "/api/v1/jobs/nope/events", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("terminal job streams one snapshot", func(t *testing.T) {
		ts := newTestServer(t, true)

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("streamed-done"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
		waitCompleted(t, ts, accepted.JobID)

		sw := ts.do(t, http.MethodGet, "/api/v1/jobs/"+accepted.JobID+"/events", nil)
		require.Equal(t, http.StatusOK, sw.Code)
		assert.Contains(t, sw.Header().Get("Content-Type"), "text/event-stream")
		assert.Contains(t, sw.Body.String(), "event:snapshot")
		assert.Contains(t, sw.Body.String(), `"state":"completed"`)
	})

	t.Run("live job streams transitions to terminal", func(t *testing.T) {
		ts := newTestServer(t, false)
		srv := httptest.NewServer(ts.router)
		defer srv.Close()

		w := ts.do(t, http.MethodPost, "/api/v1/content", quizBody("streamed-live"))
		require.Equal(t, http.StatusAccepted, w.Code)
		var accepted dto.AcceptedResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

		resp, err := http.Get(srv.URL + "/api/v1/jobs/" + accepted.JobID + "/events")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// The snapshot arrives while the job is still queued; starting the
		// workers now drives the remaining transitions through the stream.
		ts.sched.Start(context.Background())

		seen := make(chan []string, 1)
		go func() {
			var states []string
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				for _, state := range []string{"queued", "validating", "optimizing", "completed"} {
					if strings.Contains(line, `"state":"`+state+`"`) {
						states = append(states, state)
					}
				}
			}
			seen <- states
		}()

		select {
		case states := <-seen:
			require.NotEmpty(t, states)
			assert.Equal(t, "queued", states[0], "snapshot must come first")
			assert.Equal(t, "completed", states[len(states)-1], "stream must end on the terminal state")
		case <-time.After(5 * time.Second):
			t.Fatal("stream never closed")
		}
	})
}

func waitCompleted(t *testing.T, ts *testServer, jobID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := ts.store.Get(context.Background(), jobID)
		return err == nil && job.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached a terminal state", jobID)
}
