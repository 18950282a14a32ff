package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("backend should default to sqlite, got %q", cfg.Storage.Backend)
	}
	if cfg.Embedding.Provider != ProviderOpenAI {
		t.Errorf("provider should default to openai, got %q", cfg.Embedding.Provider)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_invalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  backend: "postgres"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown storage backend")
	}
}

func TestLoad_invalidOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
chunking:
  max_chunk_size: 100
  overlap_size: 100
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when overlap_size >= max_chunk_size")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/records.db"
watch:
  directories: ["./dev/sample"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "records.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	wantWatch := filepath.Join(dir, "dev", "sample")
	if cfg.Watch.Directories[0] != wantWatch {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], wantWatch)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Chunking.MaxChunkSize != 1000 || cfg.Chunking.OverlapSize != 200 {
		t.Errorf("default chunking: got %+v", cfg.Chunking)
	}
	if cfg.Retrieval.DefaultLimit != 5 {
		t.Errorf("default retrieval limit: got %d", cfg.Retrieval.DefaultLimit)
	}
	if cfg.Sync.FlushThreshold != 128 {
		t.Errorf("default flush threshold: got %d", cfg.Sync.FlushThreshold)
	}
	if cfg.Embedding.BatchSize != 64 {
		t.Errorf("default batch size: got %d", cfg.Embedding.BatchSize)
	}
	if !cfg.Storage.KeywordEnabledOrDefault() {
		t.Error("keyword index should be enabled by default")
	}
	if cfg.Watch.Extensions == nil {
		t.Error("watch extensions should be set by default")
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestStorageConfig_ActivePaths(t *testing.T) {
	f := false
	cfg := &Config{}
	ApplyDefaults(cfg)

	paths := cfg.Storage.ActivePaths()
	if len(paths) != 2 || paths[0] != cfg.Storage.DatabasePath {
		t.Errorf("sqlite active paths: got %v", paths)
	}

	cfg.Storage.Backend = BackendBadger
	cfg.Storage.KeywordEnabled = &f
	paths = cfg.Storage.ActivePaths()
	if len(paths) != 1 || paths[0] != cfg.Storage.BadgerPath {
		t.Errorf("badger active paths: got %v", paths)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
