package protocol

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"deedles.dev/wlengine/wire"
)

var argTypes = map[string]wire.ArgType{
	"int":    wire.ArgInt,
	"uint":   wire.ArgUint,
	"fixed":  wire.ArgFixed,
	"string": wire.ArgString,
	"object": wire.ArgObject,
	"new_id": wire.ArgNewID,
	"array":  wire.ArgArray,
	"fd":     wire.ArgFD,
}

// Load decodes a protocol-specification XML document.
func Load(r io.Reader) (proto Protocol, err error) {
	d := xml.NewDecoder(r)
	err = d.Decode(&proto)
	if err != nil {
		return proto, fmt.Errorf("decode protocol XML: %w", err)
	}
	return proto, nil
}

// LoadFile decodes the protocol-specification XML file at path.
func LoadFile(path string) (proto Protocol, err error) {
	file, err := os.Open(path)
	if err != nil {
		return proto, err
	}
	defer file.Close()

	return Load(file)
}

// Wire converts every interface in the protocol to a wire descriptor.
func (p Protocol) Wire() ([]*wire.Interface, error) {
	ifaces := make([]*wire.Interface, 0, len(p.Interfaces))
	var errs []error
	for _, iface := range p.Interfaces {
		w, err := iface.Wire()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ifaces = append(ifaces, w)
	}
	return ifaces, errors.Join(errs...)
}

// Wire converts the interface to a wire descriptor. A new_id argument
// without an interface is expanded into the interface name, version,
// and ID triple that it is encoded as on the wire.
func (i Interface) Wire() (*wire.Interface, error) {
	if i.Version < 1 {
		return nil, fmt.Errorf("interface %v: invalid version %v", i.Name, i.Version)
	}

	requests, err := convertOps(i.Requests)
	if err != nil {
		return nil, fmt.Errorf("interface %v: %w", i.Name, err)
	}
	events, err := convertOps(i.Events)
	if err != nil {
		return nil, fmt.Errorf("interface %v: %w", i.Name, err)
	}

	return &wire.Interface{
		Name:     i.Name,
		Version:  uint32(i.Version),
		Requests: requests,
		Events:   events,
	}, nil
}

func convertOps(ops []Op) ([]wire.Method, error) {
	methods := make([]wire.Method, 0, len(ops))
	for _, op := range ops {
		m := wire.Method{
			Name:       op.Name,
			Since:      uint32(max(op.Since, 1)),
			Destructor: op.IsDestructor(),
			Args:       make([]wire.Arg, 0, len(op.Args)),
		}
		for _, arg := range op.Args {
			t, ok := argTypes[arg.Type]
			if !ok {
				return nil, fmt.Errorf("%v: argument %v has unknown type %q", op.Name, arg.Name, arg.Type)
			}

			if (t == wire.ArgNewID) && (arg.Interface == "") {
				m.Args = append(m.Args,
					wire.Arg{Name: "interface", Type: wire.ArgString},
					wire.Arg{Name: "version", Type: wire.ArgUint},
					wire.Arg{Name: arg.Name, Type: wire.ArgNewID},
				)
				continue
			}

			m.Args = append(m.Args, wire.Arg{
				Name:      arg.Name,
				Type:      t,
				Interface: arg.Interface,
				Nullable:  arg.AllowNull,
			})
		}
		methods = append(methods, m)
	}
	return methods, nil
}
