package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tipgate/internal/config"
	"github.com/MrEthical07/tipgate/store"
)

func TestNewLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, "v", rec["k"])

	buf.Reset()
	newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("hello")
	require.Contains(t, buf.String(), "msg=hello")
}

func TestOpenStoreUpsertsTenants(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config.StoreConfig{
		{Driver: "memory"},
		{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "tipgate.db")},
	} {
		s, err := openStore(ctx, cfg)
		require.NoError(t, err, cfg.Driver)

		require.NoError(t, s.saveTenant(ctx, store.Tenant{ID: 2, Active: true, ReceiptSalt: "S"}))
		got, err := s.Tenant(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, "S", got.ReceiptSalt)
		require.NoError(t, s.Close())
	}
}
