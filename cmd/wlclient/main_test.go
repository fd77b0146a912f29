package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/internal/wltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGlobalsCommand(t *testing.T) {
	server, err := wltest.NewServer(t.TempDir(), wltest.CoreGlobals()...)
	require.NoError(t, err)
	defer server.Close()

	out, err := run(t, "globals", "--display", server.Path())
	require.NoError(t, err)
	assert.Contains(t, out, "SUPPORTED")
	assert.Contains(t, out, "wl_compositor")
	assert.Contains(t, out, "wl_output")
}

func TestGlobalsCommandNoCompositor(t *testing.T) {
	_, err := run(t, "globals", "--display", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, wl.ErrConnectionFailed)
}

func TestGlobalsTable(t *testing.T) {
	out := globalsTable([]wl.Global{
		{Name: 1, Interface: "wl_compositor", Version: 6},
		{Name: 9, Interface: "zwp_unknown_v1", Version: 1},
	})
	assert.Contains(t, out, "wl_compositor")
	assert.Contains(t, out, "zwp_unknown_v1")
	assert.Contains(t, out, "-")
}

const testXML = `<?xml version="1.0" encoding="UTF-8"?>
<protocol name="test_shell">
  <interface name="test_shell" version="2">
    <request name="destroy" type="destructor"/>
    <request name="get_toplevel">
      <arg name="id" type="new_id" interface="test_toplevel"/>
      <arg name="title" type="string" allow-null="true"/>
    </request>
    <event name="ping" since="2">
      <arg name="serial" type="uint"/>
    </event>
  </interface>
</protocol>`

func TestProtocolCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.xml")
	require.NoError(t, os.WriteFile(path, []byte(testXML), 0644))

	out, err := run(t, "protocol", path)
	require.NoError(t, err)
	assert.Contains(t, out, "test_shell v2")
	assert.Contains(t, out, "-> 0: destroy() destructor")
	assert.Contains(t, out, "-> 1: get_toplevel(id new_id:test_toplevel, ?title string)")
	assert.Contains(t, out, "<- 0: ping(serial uint) since 2")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "wlclient "+wl.Version)
	assert.Contains(t, out, "wl_surface v6")
}
