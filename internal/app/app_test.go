package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/config"
)

func TestOpenDatasetImportsExport(t *testing.T) {
	store, err := OpenDataset(context.Background(), config.DatasetConfig{CSV: "../dataset/testdata/resale_sample.csv"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.NotEqual(t, "no transactions loaded", store.Range())
}

func TestOpenDatasetMissingExport(t *testing.T) {
	store, err := OpenDataset(context.Background(), config.DatasetConfig{CSV: "testdata/missing.csv"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "no transactions loaded", store.Range())
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = ""

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}
