// Package settings is the key/value persistence behind per-group moderation
// state, warning counters and bot-wide toggles. Values are JSON documents.
package settings

import (
	"context"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("settings store closed")

// Store is content-agnostic persistence. Load decodes the value stored at
// key into out and reports whether it existed; out is left untouched when it
// did not, so callers pre-fill defaults.
type Store interface {
	Load(ctx context.Context, key string, out any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Close() error
}

// Flusher is implemented by stores that buffer writes in memory.
type Flusher interface {
	Flush() error
}

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Options struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		return OpenFile(opts.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", opts.Backend)
	}
}
