package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"btc-direction/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"BTC-USD"},
"timestamp":[1704067200,1704153600,1704240000],
"indicators":{"quote":[{"close":[42000,43000,44500]}]}}],"error":null}}`

func chartServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(chartBody))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_StoresSnapshot(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HISTORY_SOURCE", "yahoo")
	t.Setenv("HISTORY_URL", chartServer(t, http.StatusOK).URL)
	dataPath := filepath.Join(t.TempDir(), "nested", "data")

	require.NoError(t, run("BTC-USD", dataPath))

	store, err := storage.New(dataPath)
	require.NoError(t, err)
	defer store.Close()

	obs, err := store.GetPrices("BTC-USD")
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, 44500.0, obs[2].Price)
}

func TestRun_FetchFailureIsReturned(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HISTORY_SOURCE", "yahoo")
	t.Setenv("HISTORY_URL", chartServer(t, http.StatusInternalServerError).URL)

	err := run("BTC-USD", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history fetch for BTC-USD failed")
}
