package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocat/pkg/config"
)

// testConfig keeps the catalog and content under a temp data directory so
// consecutive commands see the same state.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = "ERROR"
	cfg.Framework.StagingDir = t.TempDir()
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Run(context.Background(), args,
		WithIO(strings.NewReader(""), &out, &errOut),
		WithConfig(cfg))
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "dittocat "+Version+"\n", out)
}

func TestHelp(t *testing.T) {
	out, _, err := run(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage")
	assert.Contains(t, out, "ingest")
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := run(t, testConfig(t), "no-such-cmd")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := run(t, testConfig(t), "--log-level", "LOUD", "sources")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dittocat.yaml")

	out, _, err := run(t, nil, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, _, err = run(t, nil, "--config", path, "init")
	assert.ErrorContains(t, err, "already exists")

	_, _, err = run(t, nil, "--config", path, "init", "--force")
	assert.NoError(t, err)
}

func TestCatalogRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	file := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello world"), 0644))

	// Ingest
	out, _, err := run(t, cfg, "ingest", "--attr", "title=Greeting", file)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 3, "unexpected ingest output %q", out)
	require.Equal(t, "created", fields[0])
	id := fields[1]
	assert.Equal(t, "Greeting", fields[2])

	// Query
	out, _, err = run(t, cfg, "query", "--eq", "title=Greeting")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, _, err = run(t, cfg, "query", "--eq", "title=Nothing")
	require.NoError(t, err)
	assert.NotContains(t, out, id)

	// Resource
	out, _, err = run(t, cfg, "get", id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	dir := t.TempDir()
	_, _, err = run(t, cfg, "get", "-o", dir, id)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// Transform
	out, _, err = run(t, cfg, "transform", "--format", "yaml", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Greeting")

	// Delete
	out, _, err = run(t, cfg, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)

	out, _, err = run(t, cfg, "query")
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestSources(t *testing.T) {
	out, _, err := run(t, testConfig(t), "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "dittocat")

	out, _, err = run(t, testConfig(t), "sources", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "id: dittocat")
}

func TestGC(t *testing.T) {
	out, _, err := run(t, testConfig(t), "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "stored=0")
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"title=a", "keywords=x", "keywords=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"title":    {"a"},
		"keywords": {"x", "y"},
		"empty":    {""},
	}, got)

	_, err = parseKeyValues([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseKeyValues([]string{"=x"})
	assert.Error(t, err)
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		flags   queryFlags
		want    string
		wantErr bool
	}{
		{name: "no criteria", flags: queryFlags{}, want: "INCLUDE"},
		{name: "no criteria any", flags: queryFlags{any: true}, want: "INCLUDE"},
		{name: "equal", flags: queryFlags{equal: []string{"title=a"}}, want: "title"},
		{name: "like", flags: queryFlags{like: []string{"title=*a*"}}, want: "LIKE"},
		{name: "bad pair", flags: queryFlags{equal: []string{"title"}}, wantErr: true},
		{name: "bad time", flags: queryFlags{after: []string{"created=yesterday"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := buildFilter(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, f.String(), tt.want)
		})
	}
}

func TestParseSort(t *testing.T) {
	got, err := parseSort([]string{"created:desc", "title", "relevance"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Descending)
	assert.False(t, got[1].Descending)
	assert.Equal(t, "RELEVANCE", got[2].Attribute)

	_, err = parseSort([]string{"title:sideways"})
	assert.Error(t, err)
}
