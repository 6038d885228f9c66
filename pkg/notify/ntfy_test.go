package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNTFYClient_SendAlert(t *testing.T) {
	var got NTFYMessage
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewNTFYClient(NTFYConfig{ServerURL: srv.URL, Topic: "harvester", Username: "u", Password: "p", Enabled: true})
	require.NoError(t, c.AlertWriteFailure(context.Background(), "inbox", 2))

	assert.Equal(t, "harvester", got.Topic)
	assert.Equal(t, int(PriorityHigh), got.Priority)
	assert.Contains(t, got.Message, "2 batch(es) from inbox")
	assert.Equal(t, []string{"rotating_light", "floppy_disk"}, got.Tags)

	// Same type inside MinGap is suppressed; another type is not.
	require.NoError(t, c.AlertWriteFailure(context.Background(), "inbox", 1))
	require.NoError(t, c.AlertRejected(context.Background(), "inbox", 1))
	assert.Equal(t, int32(2), calls.Load())

	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, c.AlertWriteFailure(context.Background(), "inbox", 1))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNTFYClient_Disabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	c := NewNTFYClient(NTFYConfig{ServerURL: srv.URL, Topic: "t"})
	assert.False(t, c.IsEnabled())
	require.NoError(t, c.AlertTargetLost(context.Background(), "x"))
	assert.Zero(t, calls.Load())

	var nilClient *NTFYClient
	assert.False(t, nilClient.IsEnabled())
}

func TestNTFYClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewNTFYClient(NTFYConfig{ServerURL: srv.URL, Topic: "t", Enabled: true})
	err := c.AlertRejected(context.Background(), "inbox", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
