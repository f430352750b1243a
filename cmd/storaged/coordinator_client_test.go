package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func newFakeCoordinator(t *testing.T, cfg *types.Configuration, checkpoint uint64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(cfg)
	})
	mux.HandleFunc("/v1/checkpoint", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]uint64{"checkpoint": checkpoint})
	})
	mux.HandleFunc("/v1/server-online", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(returnCodeResponse{Code: types.Success})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCoordinatorClientConfigurationDecodesResponse(t *testing.T) {
	want := &types.Configuration{Version: 7, Cluster: 1}
	server := newFakeCoordinator(t, want, 3)

	c := &coordinatorClient{baseURL: server.URL, http: &http.Client{Timeout: 2 * time.Second}}
	got := c.Configuration()
	require.NotNil(t, got)
	assert.Equal(t, uint64(7), got.Version)
}

func TestCoordinatorClientServerOnlinePostsAndDecodesReturnCode(t *testing.T) {
	server := newFakeCoordinator(t, &types.Configuration{}, 0)
	c := &coordinatorClient{baseURL: server.URL, http: &http.Client{Timeout: 2 * time.Second}}

	code, err := c.ServerOnline(types.ServerID(1), "127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, types.Success, code)
}

func TestCoordinatorClientGetSurfacesNonOKStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/configuration", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := &coordinatorClient{baseURL: server.URL, http: &http.Client{Timeout: 2 * time.Second}}
	got := c.Configuration()
	assert.Nil(t, got)
}

func TestCoordinatorClientPostSurfacesRejectionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/server-online", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := &coordinatorClient{baseURL: server.URL, http: &http.Client{Timeout: 2 * time.Second}}
	_, err := c.ServerOnline(types.ServerID(1), "127.0.0.1:9000")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
}
