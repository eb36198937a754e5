package state

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
	if doc.GameTitle != DefaultDocument().GameTitle {
		t.Fatalf("missing file should yield default document, got %+v", doc)
	}

	doc.GameTitle = "Pokemon Red"
	doc.Owners = []string{"owner-1"}
	doc.Hosts = []HostRecord{{GuildID: "guildA", MirrorChannelID: "c1", MirrorMessageID: "m1"}}
	doc.PlaytimeMS = 1234
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.GameTitle != "Pokemon Red" || got.PlaytimeMS != 1234 {
		t.Fatalf("unexpected document after reload: %+v", got)
	}
	if len(got.Hosts) != 1 || got.Hosts[0].GuildID != "guildA" {
		t.Fatalf("hosts not persisted: %+v", got.Hosts)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty db error = %v", err)
	}
	if doc.AutoSaveRemindAt != "13:00" {
		t.Fatalf("empty db should yield default document, got %+v", doc)
	}

	doc.Banned = []string{"troll-9"}
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc.PlaytimeMS = 99
	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.IsBanned("troll-9") {
		t.Fatalf("ban list not persisted: %+v", got.Banned)
	}
	if got.PlaytimeMS != 99 {
		t.Fatalf("PlaytimeMS = %d, want 99 (upsert should overwrite)", got.PlaytimeMS)
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, filepath.Join(t.TempDir(), "doc.json"))
	if err != nil {
		t.Fatalf("NewStore(file) error = %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Fatalf("NewStore(path) = %T, want *FileStore", s)
	}

	s, err = NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "doc.db"))
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore(sqlite://) = %T, want *SQLiteStore", s)
	}
}

func TestDocumentMembership(t *testing.T) {
	doc := Document{Owners: []string{"a"}, Banned: []string{"b"}}
	if !doc.IsOwner("a") || doc.IsOwner("b") {
		t.Fatalf("IsOwner misclassified")
	}
	if !doc.IsBanned("b") || doc.IsBanned("a") {
		t.Fatalf("IsBanned misclassified")
	}
}
