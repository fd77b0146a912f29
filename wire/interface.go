package wire

import (
	"fmt"
	"strings"
)

// ArgType identifies the wire encoding of a single message argument.
type ArgType byte

const (
	ArgInt    ArgType = 'i'
	ArgUint   ArgType = 'u'
	ArgFixed  ArgType = 'f'
	ArgString ArgType = 's'
	ArgObject ArgType = 'o'
	ArgNewID  ArgType = 'n'
	ArgArray  ArgType = 'a'
	ArgFD     ArgType = 'h'
)

func (t ArgType) String() string {
	switch t {
	case ArgInt:
		return "int"
	case ArgUint:
		return "uint"
	case ArgFixed:
		return "fixed"
	case ArgString:
		return "string"
	case ArgObject:
		return "object"
	case ArgNewID:
		return "new_id"
	case ArgArray:
		return "array"
	case ArgFD:
		return "fd"
	}
	return fmt.Sprintf("ArgType(%q)", byte(t))
}

// Arg describes one argument of a request or event.
type Arg struct {
	Name string
	Type ArgType

	// Interface is the interface of the referenced or created object
	// for object and new_id arguments. It is empty when the protocol
	// leaves it unspecified.
	Interface string

	// Nullable is set for object and string arguments that may be
	// null.
	Nullable bool
}

// Method describes a request or an event.
type Method struct {
	Name string

	// Since is the interface version that introduced the method. Zero
	// is treated as 1.
	Since uint32

	// Destructor marks requests after which the object may no longer
	// be used.
	Destructor bool

	Args []Arg
}

// Interface describes a Wayland interface: its name, the highest
// version this description covers, and the signatures of its requests
// and events indexed by opcode.
type Interface struct {
	Name     string
	Version  uint32
	Requests []Method
	Events   []Method
}

func (i *Interface) String() string {
	if i == nil {
		return "<unknown>"
	}
	return i.Name
}

// Request returns the request with the given opcode.
func (i *Interface) Request(op uint16) (*Method, error) {
	if int(op) >= len(i.Requests) {
		return nil, UnknownOpError{Interface: i.Name, Type: "request", Op: op}
	}
	return &i.Requests[op], nil
}

// Event returns the event with the given opcode.
func (i *Interface) Event(op uint16) (*Method, error) {
	if int(op) >= len(i.Events) {
		return nil, UnknownOpError{Interface: i.Name, Type: "event", Op: op}
	}
	return &i.Events[op], nil
}

// RequestOpcode returns the opcode of the named request.
func (i *Interface) RequestOpcode(name string) (uint16, bool) {
	for op, m := range i.Requests {
		if m.Name == name {
			return uint16(op), true
		}
	}
	return 0, false
}

// MinVersion returns the version the method requires.
func (m *Method) MinVersion() uint32 {
	return max(m.Since, 1)
}

// Check verifies that args match the method's signature, both in
// count and in Go type.
func (m *Method) Check(args []any) error {
	if len(args) != len(m.Args) {
		return fmt.Errorf("%v: expected %v arguments, got %v", m.Name, len(m.Args), len(args))
	}

	for i, a := range m.Args {
		var ok bool
		switch args[i].(type) {
		case int32:
			ok = a.Type == ArgInt
		case uint32:
			ok = a.Type == ArgUint
		case Fixed:
			ok = a.Type == ArgFixed
		case string:
			ok = a.Type == ArgString
		case ObjectID:
			ok = a.Type == ArgObject
			if ok && !a.Nullable && args[i].(ObjectID) == 0 {
				return fmt.Errorf("%v: argument %v (%v) is not nullable", m.Name, i, a.Name)
			}
		case NewID:
			ok = a.Type == ArgNewID
		case []byte:
			ok = a.Type == ArgArray
		case FD:
			ok = a.Type == ArgFD
		}
		if !ok {
			return fmt.Errorf("%v: argument %v (%v) should be %v, got %T", m.Name, i, a.Name, a.Type, args[i])
		}
	}

	return nil
}

// ParseArgs parses a compact signature notation. Arguments are
// separated by spaces. Each is a type letter (i, u, f, s, o, n, a, h),
// optionally prefixed by ? for nullable and suffixed by :interface for
// object and new_id arguments. For example:
//
//	"n:wl_callback"
//	"?o:wl_buffer i i"
func ParseArgs(sig string) ([]Arg, error) {
	fields := strings.Fields(sig)
	args := make([]Arg, 0, len(fields))
	for _, f := range fields {
		var arg Arg
		if rest, ok := strings.CutPrefix(f, "?"); ok {
			arg.Nullable = true
			f = rest
		}
		f, arg.Interface, _ = strings.Cut(f, ":")
		if len(f) != 1 {
			return nil, fmt.Errorf("invalid argument %q in signature %q", f, sig)
		}

		arg.Type = ArgType(f[0])
		switch arg.Type {
		case ArgInt, ArgUint, ArgFixed, ArgArray, ArgFD:
			if arg.Nullable || arg.Interface != "" {
				return nil, fmt.Errorf("argument type %v cannot be nullable or have an interface", arg.Type)
			}
		case ArgString:
			if arg.Interface != "" {
				return nil, fmt.Errorf("argument type %v cannot have an interface", arg.Type)
			}
		case ArgObject, ArgNewID:
		default:
			return nil, fmt.Errorf("unknown argument type %q in signature %q", f, sig)
		}

		args = append(args, arg)
	}
	return args, nil
}

// MustParseArgs is like ParseArgs but panics on error. It is intended
// for package-level interface tables.
func MustParseArgs(sig string) []Arg {
	args, err := ParseArgs(sig)
	if err != nil {
		panic(err)
	}
	return args
}
