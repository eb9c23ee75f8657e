package transcript

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real MongoDB; set MONGODB_URI to enable.
func TestMongoRecorder(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := "gemini_chat_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	r, err := DialMongo(ctx, uri, db, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, r.collection.Database().Drop(cleanupCtx))
		assert.NoError(t, r.Close(cleanupCtx))
	})
	assert.Equal(t, "transcripts", r.collection.Name())

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := sampleExchange("a", "first")
	first.CreatedAt = base
	other := sampleExchange("b", "other")
	other.CreatedAt = base.Add(time.Second)
	second := sampleExchange("a", "second")
	second.CreatedAt = base.Add(2 * time.Second)

	require.NoError(t, r.Record(ctx, second))
	require.NoError(t, r.Record(ctx, other))
	require.NoError(t, r.Record(ctx, first))

	got, err := r.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "first", got[0].User.Text)
	assert.Equal(t, "echo: second", got[1].Assistant.Text)
	assert.True(t, base.Equal(got[0].CreatedAt))
	require.NotNil(t, got[1].Assistant.Usage)
	assert.Equal(t, 7, got[1].Assistant.Usage.TotalTokens)
	require.Len(t, got[1].Assistant.ToolResults, 1)
	assert.Equal(t, "context_update", got[1].Assistant.ToolResults[0].Response["type"])

	require.Error(t, r.Record(ctx, first), "duplicate _id must be rejected")

	none, err := r.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
