package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockdoc/internal/config"
	"blockdoc/internal/domain"
	"blockdoc/internal/drag"
	"blockdoc/internal/engine"
	"blockdoc/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "blockdoc.db")
	cfg.Storage.DataDir = filepath.Join(dir, "documents")
	cfg.Logger.File = ""
	cfg.Autosave.Enabled = false
	cfg.Editor.DebugInvariants = true
	return cfg
}

func writeConfigFile(t *testing.T) (cfgPath, envPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`
[storage]
path = %q
data_dir = %q

[logger]
file = ""
`, filepath.Join(dir, "blockdoc.db"), filepath.Join(dir, "documents"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath, filepath.Join(dir, "missing.env")
}

func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRun_Version(t *testing.T) {
	out, _, code := run(t, "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "blockdoc")

	out, _, code = run(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, Version)
}

func TestRun_BadFlag(t *testing.T) {
	_, stderr, code := run(t, "-no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")
}

func TestRun_ImportListExportDelete(t *testing.T) {
	cfgPath, envPath := writeConfigFile(t)
	base := []string{"-config", cfgPath, "-env", envPath}

	docPath := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"blocks":[
		{"id":"h","type":"header","data":{"text":"Release notes","level":1}},
		{"id":"p","type":"paragraph","data":{"text":"Body"}}
	]}`), 0644))

	out, stderr, code := run(t, append(base, "import", docPath)...)
	require.Equal(t, 0, code, stderr)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, stderr, code = run(t, append(base, "list")...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Release notes")

	out, stderr, code = run(t, append(base, "export", id)...)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"Release notes"`)
	assert.Contains(t, out, `"id": "p"`)

	_, stderr, code = run(t, append(base, "delete", id)...)
	require.Equal(t, 0, code, stderr)

	out, _, code = run(t, append(base, "list")...)
	require.Equal(t, 0, code)
	assert.NotContains(t, out, id)
}

func TestRun_UnknownCommand(t *testing.T) {
	cfgPath, envPath := writeConfigFile(t)
	_, stderr, code := run(t, "-config", cfgPath, "-env", envPath, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestStartup_RejectsUnknownDefaultTool(t *testing.T) {
	cfg := testConfig(t)
	cfg.Editor.DefaultTool = "nope"
	a := New(cfg, nil)
	err := a.Startup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default tool")
}

func TestDragOptions_FromEditorConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Editor.DragThreshold = 8
	cfg.Editor.ScrollMargin = 0
	cfg.Editor.ScrollStep = 25
	opts := New(cfg, nil).DragOptions()
	assert.Equal(t, 8.0, opts.Threshold)
	assert.Equal(t, 50.0, opts.ScrollMargin)
	assert.Equal(t, 25.0, opts.ScrollStep)
}

func TestApp_ReloadsOpenDocumentFromMirror(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Mirror = true
	cfg.Watch.Enabled = true

	ctx := context.Background()
	a := New(cfg, nil)
	require.NoError(t, a.Startup(ctx))
	defer a.Shutdown(ctx)

	docs := a.Documents()
	sess, err := docs.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, docs.Save(ctx, sess.ID()))

	edited := &domain.Document{Blocks: []domain.SerializedBlock{
		{ID: "x", Type: "paragraph", Data: domain.Data{"text": "edited elsewhere"}},
	}}
	require.NoError(t, storage.WriteMirror(cfg.Storage.DataDir, sess.ID(), edited))

	require.Eventually(t, func() bool {
		var text string
		_ = sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
			if h, ok := e.GetByID("x"); ok {
				text, _ = h.Data().String("text")
			}
			return nil
		})
		return text == "edited elsewhere"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNewDragManager_UsesOpenDocument(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a := New(cfg, nil)
	require.NoError(t, a.Startup(ctx))
	defer a.Shutdown(ctx)

	sess, err := a.Documents().Create(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Do(ctx, func(ctx context.Context, e *engine.Engine) error {
		m := a.NewDragManager(e, nil, nil, nil)
		assert.Equal(t, drag.Idle, m.State())
		return nil
	}))
}
