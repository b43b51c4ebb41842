package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/providers/s3store"
	"github.com/hengadev/classify/providers/sqlitestore"
	"github.com/hengadev/classify/providers/vaultstore"
	"github.com/hengadev/classify/settings"
)

const graphJSON = `{":refid":0,"Host":"a","Peers":[{":ref":0}]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "app.json", `{"Host":"a","Port":1}`)
	yamlPath := filepath.Join(dir, "app.yaml")

	require.NoError(t, runConvert([]string{in, yamlPath}, nil, nil))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Host: a\nPort: 1\n", string(data))

	var out bytes.Buffer
	require.NoError(t, runConvert([]string{"-compact", yamlPath, "-"}, nil, &out))
	assert.Equal(t, `{"Host":"a","Port":1}`+"\n", out.String())
}

func TestConvertStdio(t *testing.T) {
	var out bytes.Buffer
	err := runConvert([]string{"-to", "yaml", "-", "-"}, strings.NewReader(`{"Tags":["x","y"]}`), &out)
	require.NoError(t, err)
	assert.Equal(t, "Tags:\n    - x\n    - y\n", out.String())
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	dangling := writeFile(t, dir, "dangling.json", `[{":ref":3}]`)
	broken := writeFile(t, dir, "broken.json", `{"Host":`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing output", []string{dangling}, "needs an input and an output"},
		{"unknown encoding", []string{"-to", "toml", dangling, "-"}, "unknown encoding"},
		{"broken references", []string{"-check", dangling, "-"}, "broken references"},
		{"malformed input", []string{broken, "-"}, "failed to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runConvert(tt.args, nil, &out)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	var out bytes.Buffer
	require.NoError(t, runConvert([]string{dangling, "-"}, nil, &out), "references are only checked with -check")
}

func TestRefs(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.json", graphJSON)
	bad := writeFile(t, dir, "bad.json", `[{":refid":1,"A":1},{":refid":1,"A":2},{":ref":3}]`)

	var out bytes.Buffer
	require.NoError(t, runRefs([]string{good}, &out))
	assert.Equal(t, good+": 1 referable, 1 references\n", out.String())

	out.Reset()
	err := runRefs([]string{good, bad}, &out)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 documents have broken references", err.Error())
	assert.Contains(t, out.String(), bad+": 2 referable, 1 references\n")
	assert.Contains(t, out.String(), "  $[1]: ")
	assert.Contains(t, out.String(), "  :ref 3: ")
}

func TestFmt(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"Host":"b","Port":2}`)

	var out bytes.Buffer
	require.NoError(t, runFmt([]string{path}, &out))
	assert.Equal(t, "{\n  \"Host\": \"b\",\n  \"Port\": 2\n}\n", out.String())

	out.Reset()
	require.NoError(t, runFmt([]string{"-w", path}, &out))
	assert.Equal(t, path+"\n", out.String())

	out.Reset()
	require.NoError(t, runFmt([]string{"-w", path}, &out))
	assert.Empty(t, out.String(), "an already formatted file is left alone")

	out.Reset()
	require.NoError(t, runFmt([]string{"-compact", path}, &out))
	assert.Equal(t, `{"Host":"b","Port":2}`+"\n", out.String())
}

func writeConfig(t *testing.T, dir string, config *Config) string {
	t.Helper()
	path := filepath.Join(dir, "classify.yaml")
	require.NoError(t, SaveConfig(config, path))
	return path
}

func TestPushPullFile(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	config := DefaultConfig()
	config.Store.Dir = filepath.Join(dir, "store")
	configPath := writeConfig(t, dir, config)

	doc := "Host: a\nPort: 1\n"
	in := writeFile(t, dir, "app.yaml", doc)

	var out bytes.Buffer
	require.NoError(t, runPush([]string{"-config", configPath, in}, &out))
	assert.Equal(t, "pushed app.yaml (16 bytes) to file\n", out.String())

	stored, err := os.ReadFile(filepath.Join(dir, "store", "app.yaml"))
	require.NoError(t, err)
	assert.Equal(t, doc, string(stored))

	out.Reset()
	require.NoError(t, runPull([]string{"-config", configPath, "app.yaml"}, &out))
	assert.Equal(t, doc, out.String())

	target := filepath.Join(dir, "copy.yaml")
	require.NoError(t, runPull([]string{"-config", configPath, "app.yaml", target}, &out))
	copied, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, doc, string(copied))

	err = runPull([]string{"-config", configPath, "other.yaml"}, &out)
	assert.ErrorIs(t, err, settings.ErrNotFound)

	err = runPull([]string{"-config", configPath, "-revision", "abc", "app.yaml"}, &out)
	assert.ErrorIs(t, err, classify.ErrInvalidConfiguration)
}

func TestPushRejectsInvalidDocuments(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	config := DefaultConfig()
	config.Store.Dir = filepath.Join(dir, "store")
	configPath := writeConfig(t, dir, config)
	in := writeFile(t, dir, "app.json", `{"Host":`)

	var out bytes.Buffer
	err := runPush([]string{"-config", configPath, in}, &out)
	assert.ErrorContains(t, err, "is not a valid json document")
	assert.NoFileExists(t, filepath.Join(dir, "store", "app.json"))
}

func TestPushMissingConfig(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "app.json", `{}`)

	var out bytes.Buffer
	err := runPush([]string{"-config", filepath.Join(dir, "none.yaml"), in}, &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHistorySQLite(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	config := DefaultConfig()
	config.Store.Backend = "sqlite"
	config.Store.SQLite.Path = filepath.Join(dir, "db", "settings.db")
	configPath := writeConfig(t, dir, config)

	var out bytes.Buffer
	for i := 1; i <= 3; i++ {
		in := writeFile(t, dir, "app.json", fmt.Sprintf(`{"Port":%d}`, i))
		require.NoError(t, runPush([]string{"-config", configPath, in}, &out))
	}

	out.Reset()
	require.NoError(t, runHistory([]string{"-config", configPath, "app.json"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "   3  "), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "   1  "), lines[2])

	store, err := sqlitestore.Open(config.Store.SQLite.Path)
	require.NoError(t, err)
	revisions, err := store.Revisions(context.Background(), "app.json")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, revisions, 3)

	out.Reset()
	require.NoError(t, runPull([]string{"-config", configPath, "-revision", revisions[2].ID, "app.json"}, &out))
	assert.Equal(t, `{"Port":1}`, out.String())

	out.Reset()
	require.NoError(t, runHistory([]string{"-config", configPath, "-prune", "1", "app.json"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "pruned 2 revisions of app.json\n"), out.String())
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))

	err = runHistory([]string{"-config", configPath, "other.json"}, &out)
	assert.ErrorIs(t, err, settings.ErrNotFound)
}

func TestHistoryNeedsSQLite(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()
	config := DefaultConfig()
	config.Store.Dir = filepath.Join(dir, "store")
	configPath := writeConfig(t, dir, config)

	err := runHistory([]string{"-config", configPath, "app.json"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, classify.ErrInvalidConfiguration)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("s3", func(t *testing.T) {
		config := DefaultConfig()
		config.Store.Backend = "s3"
		config.Store.S3 = S3Config{Bucket: "app", Prefix: "settings", Region: "eu-west-1"}

		store, closeStore, err := openStore(ctx, config)
		require.NoError(t, err)
		defer closeStore()
		wrapped, ok := store.(*settings.ReliableStore)
		require.True(t, ok, "got %T", store)
		s3, ok := wrapped.Unwrap().(*s3store.Store)
		require.True(t, ok, "got %T", wrapped.Unwrap())
		assert.Equal(t, "settings/app.json", s3.Key("app.json"))
	})

	t.Run("vault", func(t *testing.T) {
		t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
		t.Setenv("VAULT_TOKEN", "test-token")
		t.Setenv("VAULT_NAMESPACE", "")
		config := DefaultConfig()
		config.Store.Backend = "vault"

		store, closeStore, err := openStore(ctx, config)
		require.NoError(t, err)
		defer closeStore()
		wrapped, ok := store.(*settings.ReliableStore)
		require.True(t, ok, "got %T", store)
		assert.Equal(t, "vault", wrapped.Kind())
		vault, ok := wrapped.Unwrap().(*vaultstore.Store)
		require.True(t, ok, "got %T", wrapped.Unwrap())
		assert.Equal(t, "secret/data/classify/app.json", vault.DataPath("app.json"))
	})

	t.Run("unknown", func(t *testing.T) {
		config := DefaultConfig()
		config.Store.Backend = "ftp"

		_, _, err := openStore(ctx, config)
		assert.ErrorIs(t, err, classify.ErrInvalidConfiguration)
	})
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classify.yaml")

	var out bytes.Buffer
	require.NoError(t, runInit([]string{"-output", path}, &out))
	assert.Equal(t, "Created "+path+"\n", out.String())

	config, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	err = runInit([]string{"-output", path}, &out)
	assert.ErrorContains(t, err, "already exists")
	require.NoError(t, runInit([]string{"-output", path, "-force"}, &out))
}
