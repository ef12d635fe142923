package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"
)

func TestWebhookNotifierPostsEventJSON(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), Event{RunID: "r1", TaskID: "t1", Name: "task_failed", Message: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "r1", received.RunID)
	assert.Equal(t, "boom", received.Message)
}

func TestWebhookNotifierServerErrorDoesNotErrorByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	// resty only returns a Go error for transport failures, not HTTP status
	// codes, matching the teacher's "errors are transport-level" convention.
	err := n.Notify(context.Background(), Event{Name: "dag_finished"})
	assert.NoError(t, err)
}
