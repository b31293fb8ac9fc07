package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSource_Amendments(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	am, err := rt.RunSource(context.Background(), `
allow("audio::Mixer")
allow("audio::start")
exclude("audio::Internal")
force_pod("audio::Point", true)
force_pod("audio::Blob", false)
request_subclass("audio::Mixer")
add_include("audio/mixer.h")
log.info("rules applied")
`)
	require.NoError(t, err)

	assert.Equal(t, []string{"audio::Mixer", "audio::start"}, am.Allow)
	assert.Equal(t, []string{"audio::Internal"}, am.Exclude)
	assert.Equal(t, map[string]bool{"audio::Point": true, "audio::Blob": false}, am.PODOverrides)
	assert.Equal(t, []string{"audio::Mixer"}, am.SubclassRequests)
	assert.Equal(t, []string{"audio/mixer.h"}, am.ExtraIncludes)
}

func TestRunSource_Conditionals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	am, err := rt.RunSource(context.Background(), `
targets := ["audio::Mixer", "audio::Decoder", "audio::Internal"]
for _, name := range targets {
    if name != "audio::Internal" {
        allow(name)
    }
}
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"audio::Mixer", "audio::Decoder"}, am.Allow)
}

func TestRunSource_BadArgumentType(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	_, err := rt.RunSource(context.Background(), `allow(42)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow")
}

func TestRunSource_WrongArity(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	_, err := rt.RunSource(context.Background(), `force_pod("audio::Point")`)
	require.Error(t, err)
}

func TestRunScript_FromScriptsDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "bridge.risor"), []byte(`allow("audio::Mixer")`), 0644))

	rt := NewRuntime(dir)
	am, err := rt.RunScript(context.Background(), "bridge.risor")
	require.NoError(t, err)
	assert.Equal(t, []string{"audio::Mixer"}, am.Allow)
}

func TestRunScript_Missing(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(t.TempDir())

	_, err := rt.RunScript(context.Background(), "absent.risor")
	require.Error(t, err)
}

func TestRunScript_FromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"rules/bridge.risor": &fstest.MapFile{Data: []byte(`request_subclass("ui::Panel")`)},
	}

	rt := NewRuntime("", WithFS(fsys))
	am, err := rt.RunScript(context.Background(), "rules/bridge.risor")
	require.NoError(t, err)
	assert.Equal(t, []string{"ui::Panel"}, am.SubclassRequests)
}
