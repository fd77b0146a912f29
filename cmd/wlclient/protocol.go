package main

import (
	"fmt"
	"io"
	"strings"

	"deedles.dev/wlengine/protocol"
	"deedles.dev/wlengine/wire"
	"github.com/spf13/cobra"
)

var protocolCmd = &cobra.Command{
	Use:   "protocol <file.xml>",
	Short: "Print the interfaces described by a protocol XML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		proto, err := protocol.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("load %v: %w", args[0], err)
		}
		ifaces, err := proto.Wire()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%v\n", proto.Name)
		for _, iface := range ifaces {
			printInterface(out, iface)
		}
		return nil
	},
}

func printInterface(w io.Writer, iface *wire.Interface) {
	fmt.Fprintf(w, "\n%v v%v\n", iface.Name, iface.Version)
	for op, m := range iface.Requests {
		fmt.Fprintf(w, "  -> %v: %v\n", op, signature(&m))
	}
	for op, m := range iface.Events {
		fmt.Fprintf(w, "  <- %v: %v\n", op, signature(&m))
	}
}

func signature(m *wire.Method) string {
	args := make([]string, 0, len(m.Args))
	for _, arg := range m.Args {
		s := arg.Name + " " + arg.Type.String()
		if arg.Interface != "" {
			s += ":" + arg.Interface
		}
		if arg.Nullable {
			s = "?" + s
		}
		args = append(args, s)
	}

	sig := fmt.Sprintf("%v(%v)", m.Name, strings.Join(args, ", "))
	if m.Since > 1 {
		sig += fmt.Sprintf(" since %v", m.Since)
	}
	if m.Destructor {
		sig += " destructor"
	}
	return sig
}
