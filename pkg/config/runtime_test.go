package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittocat/pkg/adapter/monitor"
	"github.com/marmos91/dittocat/pkg/catalog"
	"github.com/marmos91/dittocat/pkg/filter"
)

// memoryConfig is a valid configuration that touches no disk.
func memoryConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Framework.ID = "local"
	cfg.Catalog.Type = "memory"
	cfg.Storage.Type = "memory"
	return cfg
}

func TestNewRuntime_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Stores = []StoreConfig{{ID: "archive", Type: "memory"}}
	cfg.Plugins.Checksum.Enabled = true
	cfg.GC.Enabled = true

	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if rt.Framework.ID() != "local" {
		t.Errorf("Expected framework id 'local', got %q", rt.Framework.ID())
	}
	if rt.Storage == nil {
		t.Fatal("Expected a storage provider")
	}
	if rt.Collector == nil {
		t.Error("Expected a collector when gc is enabled")
	}
	if len(rt.Registry.Readers()) != 1 {
		t.Errorf("Expected only the content reader, got %d readers", len(rt.Registry.Readers()))
	}
	if ids := rt.Registry.CatalogStoreIDs(); len(ids) != 1 || ids[0] != "archive" {
		t.Errorf("Expected catalog store 'archive', got %v", ids)
	}
}

func TestNewRuntime_IngestAndQuery(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Plugins.Checksum.Enabled = true
	cfg.Framework.DefaultAttributes = map[string][]string{"topic.keyword": {"default"}}

	rt, err := NewRuntime(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer func() { _ = rt.Close() }()

	item := &catalog.ContentItem{
		Filename: "hello.txt",
		Source:   catalog.BytesSource([]byte("hello world")),
	}
	created, err := rt.Framework.CreateStorage(ctx, catalog.NewCreateStorageRequest(item))
	if err != nil {
		t.Fatalf("CreateStorage failed: %v", err)
	}
	if len(created.Created) != 1 {
		t.Fatalf("Expected one created metacard, got %d", len(created.Created))
	}
	m := created.Created[0]
	if m.String(catalog.AttrChecksum) == "" {
		t.Error("Expected checksum plugin to stamp the metacard")
	}

	resp, err := rt.Framework.Query(ctx, &catalog.QueryRequest{Query: catalog.NewQuery(filter.Include)})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if resp.Hits != 1 || len(resp.Results) != 1 {
		t.Fatalf("Expected one hit, got %d", resp.Hits)
	}
	if got := resp.Results[0].Metacard.String("topic.keyword"); got != "default" {
		t.Errorf("Expected default attribute to be applied, got %q", got)
	}
}

func TestNewRuntime_Adapters(t *testing.T) {
	cfg := memoryConfig()
	cfg.Monitor = []monitor.Config{{Directory: t.TempDir()}}

	rt, err := NewRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if len(rt.Adapters) != 1 {
		t.Fatalf("Expected one adapter, got %d", len(rt.Adapters))
	}
	if !strings.HasPrefix(rt.Adapters[0].Name(), "monitor:") {
		t.Errorf("Unexpected adapter name %q", rt.Adapters[0].Name())
	}
}

func TestNewRuntime_Readers(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := memoryConfig()
	cfg.Storage.Enabled = false
	cfg.Readers.File = FileReaderConfig{Enabled: true, Roots: []string{root}}
	cfg.Readers.HTTP.Enabled = true

	rt, err := NewRuntime(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if rt.Storage != nil {
		t.Error("Expected no storage provider when storage is disabled")
	}
	if len(rt.Registry.Readers()) != 2 {
		t.Errorf("Expected file and http readers, got %d", len(rt.Registry.Readers()))
	}
}
