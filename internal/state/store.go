package state

import (
	"context"
	"strings"
)

// Store persists the configuration document.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

// NewStore selects a backend from the state URL: postgres for postgres://,
// sqlite for sqlite://, otherwise a JSON file (empty URL means the default
// file path).
func NewStore(ctx context.Context, stateURL string) (Store, error) {
	url := strings.TrimSpace(stateURL)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(url, "sqlite://"))
	case url == "":
		return NewFileStore("crowdplay-state.json"), nil
	default:
		return NewFileStore(url), nil
	}
}
