package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe_Disabled(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Enabled())

	_, err := c.Describe(context.Background(), "Dune", "Frank Herbert")
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestDescribe_ReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Contains(t, req.Messages[1].Content, "Dune")

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A desert epic.  "}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "test-model"})
	text, err := c.Describe(context.Background(), "Dune", "Frank Herbert")
	require.NoError(t, err)
	assert.Equal(t, "A desert epic.", text)
}

func TestDescribe_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Describe(context.Background(), "Dune", "Frank Herbert")
	assert.Error(t, err)
}

func TestDescribe_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Describe(context.Background(), "Dune", "Frank Herbert")
	assert.Error(t, err)
}
