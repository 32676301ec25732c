package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	err := c.Send(context.Background(), "Hey, Maria Silva, congratulations on your 5-year work anniversary!", "emp-1", "ANNIVERSARY")
	require.NoError(t, err)

	assert.Equal(t, "Hey, Maria Silva, congratulations on your 5-year work anniversary!", got.Message)
	assert.Equal(t, "emp-1", got.EmployeeID)
	assert.Equal(t, "ANNIVERSARY", got.MessageType)

	_, err = time.Parse(time.RFC3339, got.Timestamp)
	assert.NoError(t, err)
}

func TestSend_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	err := c.Send(context.Background(), "msg", "emp-1", "ANNIVERSARY")
	assert.Error(t, err)
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second)

	err := c.Send(context.Background(), "msg", "emp-1", "ANNIVERSARY")
	assert.Error(t, err)
}
