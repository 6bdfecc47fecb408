package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:  srv.URL,
		Email:    "bot@example.com",
		APIToken: "api-token",
		Timeout:  timeout,
	})
}

func TestClient_GetIssue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/api/2/issue/PROJ-7", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		assert.Equal(t, "api-token", pass)
		_, _ = w.Write([]byte(`{"key":"PROJ-7","fields":{"summary":"Fix login","status":{"name":"In Progress"},
			"assignee":{"displayName":"Ada"},"priority":{"name":"High"},"updated":"2026-01-02T10:00:00.000+0000",
			"description":"not forwarded"}}`))
	}, time.Second)

	issue, err := c.GetIssue(context.Background(), "PROJ-7")

	require.NoError(t, err)
	assert.Equal(t, &TicketSummary{
		Key:      "PROJ-7",
		Summary:  "Fix login",
		Status:   "In Progress",
		Assignee: "Ada",
		Priority: "High",
		Updated:  "2026-01-02T10:00:00.000+0000",
	}, issue)
}

func TestClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "project = PROJ", body["jql"])
		assert.Equal(t, float64(10), body["maxResults"])
		_, _ = w.Write([]byte(`{"total":1,"issues":[{"key":"PROJ-1","fields":{"summary":"One"}}]}`))
	}, time.Second)

	res, err := c.Search(context.Background(), "project = PROJ", 10)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "PROJ-1", res.Issues[0].Key)
}

func TestClient_AddCommentAndTransition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/rest/api/2/issue/PROJ-1/comment":
			assert.Equal(t, "looks good", body["body"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"100","author":{"displayName":"bot"},"body":"looks good"}`))
		case "/rest/api/2/issue/PROJ-1/transitions":
			assert.Equal(t, map[string]any{"id": "31"}, body["transition"])
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, time.Second)

	comment, err := c.AddComment(context.Background(), "PROJ-1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, "100", comment.ID)
	assert.Equal(t, "bot", comment.Author)

	assert.NoError(t, c.Transition(context.Background(), "PROJ-1", 31))
}

func TestClient_ErrorStatusIsSanitized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errorMessages":["db password=hunter2 leaked"]}`))
	}, time.Second)

	_, err := c.GetIssue(context.Background(), "PROJ-1")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.False(t, ue.Timeout)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.GetIssue(context.Background(), "PROJ-1")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Timeout)
}

func TestClient_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}, time.Second)

	_, err := c.GetIssue(context.Background(), "PROJ-1")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.False(t, ue.Timeout)
}

func TestClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"key":"PROJ-1","fields":{}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 100 * time.Millisecond, RPS: 0.5})

	_, err := c.GetIssue(context.Background(), "PROJ-1")
	require.NoError(t, err)

	// The next slot is two seconds away, beyond the call timeout.
	_, err = c.GetIssue(context.Background(), "PROJ-1")
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Timeout)
	assert.Equal(t, int32(1), calls.Load())
}
