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
	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

func TestSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(5*time.Second, zap.NewNop())
	require.NoError(t, d.Send(context.Background(), srv.URL, "📊 财务日报\n\n今日无交易"))

	assert.Equal(t, "text", got["msgtype"])
	text := got["text"].(map[string]any)
	assert.Contains(t, text["content"], "财务日报")
}

func TestSend_RetriesServerErrorOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(5*time.Second, zap.NewNop())
	require.NoError(t, d.Send(context.Background(), srv.URL, "hello"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_FailureIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(5*time.Second, zap.NewNop())
	err := d.Send(context.Background(), srv.URL, "hello")
	var delErr *domain.DeliveryError
	require.ErrorAs(t, err, &delErr)
}

func TestSend_EmptyInputsRejected(t *testing.T) {
	d := New(time.Second, zap.NewNop())
	var delErr *domain.DeliveryError
	assert.ErrorAs(t, d.Send(context.Background(), "", "hi"), &delErr)
	assert.ErrorAs(t, d.Send(context.Background(), "http://example.com", "  "), &delErr)
}
