package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseServer(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCheckForUpdates(t *testing.T) {
	url := releaseServer(t, http.StatusOK, `{"tag_name": "v1.4.0"}`)

	tests := []struct {
		current  string
		outdated bool
	}{
		{"v1.3.9", true},
		{"v1.4.0", false},
		{"v2.0.0-rc.1", false},
		{"dev", false},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			info, err := CheckForUpdates(context.Background(), nil, url, tt.current)
			require.NoError(t, err)
			assert.Equal(t, "v1.4.0", info.Latest)
			assert.Equal(t, tt.outdated, info.Outdated)
		})
	}
}

func TestCheckForUpdates_Errors(t *testing.T) {
	_, err := CheckForUpdates(context.Background(), nil, releaseServer(t, http.StatusNotFound, `{}`), "v1.0.0")
	assert.Error(t, err)

	_, err = CheckForUpdates(context.Background(), nil, releaseServer(t, http.StatusOK, `{"tag_name": "latest"}`), "v1.0.0")
	assert.Error(t, err)
}
