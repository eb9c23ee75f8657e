package transcript

import (
	"context"
	"fmt"

	"github.com/m2tx/gemini_chat/internal/config"
)

// Open builds the recorder selected by cfg.Backend. It returns nil, nil for "none".
func Open(ctx context.Context, cfg config.TranscriptConfig) (Recorder, error) {
	switch cfg.Backend {
	case config.TranscriptNone, "":
		return nil, nil
	case config.TranscriptMemory:
		return NewMemoryRecorder(), nil
	case config.TranscriptSQLite:
		r, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.TranscriptMongo:
		r, err := DialMongo(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoCollection)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("transcript: unknown backend %q", cfg.Backend)
	}
}
