package gist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/runewatcher/internal/export"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/pkg/errors"
)

func sampleDocument() export.Document {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return export.Document{
		Timestamp: at,
		Prices: map[string]models.PriceRecord{
			"30#": {Code: "30#", DisplayName: "Ber", PriceA: models.Float(420), PriceB: models.Float(300), LastUpdated: &at},
		},
	}
}

func TestSyncPostsPrivateGist(t *testing.T) {
	var got createRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gists", r.URL.Path)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc","html_url":"https://gist.github.com/abc"}`))
	}))
	defer server.Close()

	c := NewClient("secret", WithBaseURL(server.URL))
	url, err := c.Sync(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, "https://gist.github.com/abc", url)

	assert.Equal(t, Description, got.Description)
	assert.False(t, got.Public)
	require.Contains(t, got.Files, FileName)

	var snap snapshot
	require.NoError(t, json.Unmarshal([]byte(got.Files[FileName].Content), &snap))
	assert.Equal(t, 420.0, *snap.Prices["30#"].PriceA)
	assert.Equal(t, 2026, snap.Timestamp.Year())
}

func TestSyncReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewClient("bad", WithBaseURL(server.URL)).Archive(context.Background(), sampleDocument())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "401")
}

func TestSyncRequiresToken(t *testing.T) {
	_, err := NewClient("").Sync(context.Background(), sampleDocument())
	assert.True(t, errors.Is(err, errors.ErrorTypeConfiguration))
}
