package protocol

import (
	"strings"
	"testing"

	"deedles.dev/wlengine/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testXML = `<?xml version="1.0" encoding="UTF-8"?>
<protocol name="test_shell">
  <copyright>Public domain.</copyright>
  <interface name="test_shell" version="2">
    <description summary="a test shell">Creates test toplevels.</description>
    <request name="destroy" type="destructor"/>
    <request name="get_toplevel">
      <arg name="id" type="new_id" interface="test_toplevel"/>
      <arg name="surface" type="object" interface="wl_surface"/>
    </request>
    <request name="bind_any" since="2">
      <arg name="id" type="new_id"/>
      <arg name="title" type="string" allow-null="true"/>
    </request>
    <event name="ping">
      <arg name="serial" type="uint"/>
    </event>
    <enum name="error">
      <entry name="role" value="0x1" summary="given surface has another role"/>
      <entry name="defunct" value="2"/>
    </enum>
  </interface>
  <interface name="test_toplevel" version="1">
    <event name="configure">
      <arg name="width" type="int"/>
      <arg name="height" type="int"/>
      <arg name="states" type="array"/>
      <arg name="scale" type="fixed"/>
      <arg name="keymap" type="fd"/>
    </event>
  </interface>
</protocol>`

func TestLoad(t *testing.T) {
	proto, err := Load(strings.NewReader(testXML))
	require.NoError(t, err)
	assert.Equal(t, "test_shell", proto.Name)
	require.Len(t, proto.Interfaces, 2)

	shell := proto.Interfaces[0]
	assert.Equal(t, 2, shell.Version)
	assert.Equal(t, "a test shell", shell.Description.Summary)
	require.Len(t, shell.Requests, 3)
	assert.True(t, shell.Requests[0].IsDestructor())
	assert.Equal(t, 2, shell.Requests[2].Since)

	require.Len(t, shell.Enums, 1)
	v, err := shell.Enums[0].Entries[0].Int()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWire(t *testing.T) {
	proto, err := Load(strings.NewReader(testXML))
	require.NoError(t, err)

	ifaces, err := proto.Wire()
	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	shell := ifaces[0]
	assert.Equal(t, "test_shell", shell.Name)
	assert.Equal(t, uint32(2), shell.Version)
	assert.True(t, shell.Requests[0].Destructor)
	assert.Equal(t, uint32(1), shell.Requests[0].MinVersion())

	assert.Equal(t, []wire.Arg{
		{Name: "id", Type: wire.ArgNewID, Interface: "test_toplevel"},
		{Name: "surface", Type: wire.ArgObject, Interface: "wl_surface"},
	}, shell.Requests[1].Args)

	bindAny := shell.Requests[2]
	assert.Equal(t, uint32(2), bindAny.Since)
	require.Len(t, bindAny.Args, 4)
	assert.Equal(t, wire.ArgString, bindAny.Args[0].Type)
	assert.Equal(t, wire.ArgUint, bindAny.Args[1].Type)
	assert.Equal(t, wire.ArgNewID, bindAny.Args[2].Type)
	assert.True(t, bindAny.Args[3].Nullable)

	toplevel := ifaces[1]
	m, err := toplevel.Event(0)
	require.NoError(t, err)
	types := make([]wire.ArgType, 0, len(m.Args))
	for _, arg := range m.Args {
		types = append(types, arg.Type)
	}
	assert.Equal(t, []wire.ArgType{wire.ArgInt, wire.ArgInt, wire.ArgArray, wire.ArgFixed, wire.ArgFD}, types)

	_, err = toplevel.Event(1)
	assert.ErrorIs(t, err, wire.ErrMalformedMessage)
}

func TestWireErrors(t *testing.T) {
	_, err := Interface{Name: "bad", Version: 0}.Wire()
	assert.Error(t, err)

	_, err = Interface{
		Name:    "bad",
		Version: 1,
		Events:  []Op{{Name: "e", Args: []Arg{{Name: "x", Type: "double"}}}},
	}.Wire()
	assert.Error(t, err)

	_, err = Load(strings.NewReader("<protocol"))
	assert.Error(t, err)
}

func TestCore(t *testing.T) {
	iface, ok := Lookup("wl_surface")
	require.True(t, ok)
	assert.Same(t, Surface, iface)

	op, ok := Surface.RequestOpcode("commit")
	require.True(t, ok)
	assert.Equal(t, uint16(6), op)

	op, ok = Display.RequestOpcode("get_registry")
	require.True(t, ok)
	assert.Equal(t, uint16(1), op)

	op, ok = Registry.RequestOpcode("bind")
	require.True(t, ok)
	assert.Equal(t, uint16(0), op)

	assert.Equal(t, uint32(6), SupportedVersion("wl_compositor"))
	assert.Equal(t, uint32(0), SupportedVersion("xdg_wm_base"))

	names := make(map[string]bool)
	for _, iface := range Core() {
		assert.False(t, names[iface.Name], "duplicate %v", iface.Name)
		names[iface.Name] = true
	}
	assert.True(t, names["wl_display"])
}
