package transcript

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/gemini_chat/internal/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	r, err := Open(ctx, config.TranscriptConfig{Backend: config.TranscriptNone})
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = Open(ctx, config.TranscriptConfig{Backend: config.TranscriptMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryRecorder{}, r)

	r, err = Open(ctx, config.TranscriptConfig{
		Backend:    config.TranscriptSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "t.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRecorder{}, r)
	require.NoError(t, r.Close(ctx))

	_, err = Open(ctx, config.TranscriptConfig{Backend: "redis"})
	require.Error(t, err)
}
