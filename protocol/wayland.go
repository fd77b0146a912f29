package protocol

import "deedles.dev/wlengine/wire"

func method(name, sig string) wire.Method {
	return wire.Method{Name: name, Args: wire.MustParseArgs(sig)}
}

func since(v uint32, m wire.Method) wire.Method {
	m.Since = v
	return m
}

func destructor(m wire.Method) wire.Method {
	m.Destructor = true
	return m
}

var Display = &wire.Interface{
	Name:    "wl_display",
	Version: 1,
	Requests: []wire.Method{
		method("sync", "n:wl_callback"),
		method("get_registry", "n:wl_registry"),
	},
	Events: []wire.Method{
		method("error", "o u s"),
		method("delete_id", "u"),
	},
}

var Registry = &wire.Interface{
	Name:    "wl_registry",
	Version: 1,
	Requests: []wire.Method{
		method("bind", "u s u n"),
	},
	Events: []wire.Method{
		method("global", "u s u"),
		method("global_remove", "u"),
	},
}

var Callback = &wire.Interface{
	Name:    "wl_callback",
	Version: 1,
	Events: []wire.Method{
		method("done", "u"),
	},
}

var Compositor = &wire.Interface{
	Name:    "wl_compositor",
	Version: 6,
	Requests: []wire.Method{
		method("create_surface", "n:wl_surface"),
		method("create_region", "n:wl_region"),
	},
}

var Surface = &wire.Interface{
	Name:    "wl_surface",
	Version: 6,
	Requests: []wire.Method{
		destructor(method("destroy", "")),
		method("attach", "?o:wl_buffer i i"),
		method("damage", "i i i i"),
		method("frame", "n:wl_callback"),
		method("set_opaque_region", "?o:wl_region"),
		method("set_input_region", "?o:wl_region"),
		method("commit", ""),
		since(2, method("set_buffer_transform", "i")),
		since(3, method("set_buffer_scale", "i")),
		since(4, method("damage_buffer", "i i i i")),
		since(5, method("offset", "i i")),
	},
	Events: []wire.Method{
		method("enter", "o:wl_output"),
		method("leave", "o:wl_output"),
		since(6, method("preferred_buffer_scale", "i")),
		since(6, method("preferred_buffer_transform", "u")),
	},
}

var Region = &wire.Interface{
	Name:    "wl_region",
	Version: 1,
	Requests: []wire.Method{
		destructor(method("destroy", "")),
		method("add", "i i i i"),
		method("subtract", "i i i i"),
	},
}

var Shm = &wire.Interface{
	Name:    "wl_shm",
	Version: 2,
	Requests: []wire.Method{
		method("create_pool", "n:wl_shm_pool h i"),
		since(2, destructor(method("release", ""))),
	},
	Events: []wire.Method{
		method("format", "u"),
	},
}

var ShmPool = &wire.Interface{
	Name:    "wl_shm_pool",
	Version: 2,
	Requests: []wire.Method{
		method("create_buffer", "n:wl_buffer i i i i u"),
		destructor(method("destroy", "")),
		method("resize", "i"),
	},
}

var Buffer = &wire.Interface{
	Name:    "wl_buffer",
	Version: 1,
	Requests: []wire.Method{
		destructor(method("destroy", "")),
	},
	Events: []wire.Method{
		method("release", ""),
	},
}

// Output is described so that surface enter and leave events can name
// outputs bound through the generic registry path.
var Output = &wire.Interface{
	Name:    "wl_output",
	Version: 4,
	Requests: []wire.Method{
		since(3, destructor(method("release", ""))),
	},
	Events: []wire.Method{
		method("geometry", "i i i i i s s i"),
		method("mode", "u i i i"),
		since(2, method("done", "")),
		since(2, method("scale", "i")),
		since(4, method("name", "s")),
		since(4, method("description", "s")),
	},
}

var core = []*wire.Interface{
	Display,
	Registry,
	Callback,
	Compositor,
	Surface,
	Region,
	Shm,
	ShmPool,
	Buffer,
	Output,
}

// Core returns the descriptors of the built-in interfaces.
func Core() []*wire.Interface {
	return append([]*wire.Interface(nil), core...)
}

// Lookup returns the built-in descriptor for the named interface.
func Lookup(name string) (*wire.Interface, bool) {
	for _, iface := range core {
		if iface.Name == name {
			return iface, true
		}
	}
	return nil, false
}

// SupportedVersion returns the highest version of the named interface
// that the built-in descriptors cover, or 0 if it is not built in.
func SupportedVersion(name string) uint32 {
	iface, ok := Lookup(name)
	if !ok {
		return 0
	}
	return iface.Version
}

// Shm formats that every compositor must support.
const (
	FormatARGB8888 uint32 = 0
	FormatXRGB8888 uint32 = 1
)
