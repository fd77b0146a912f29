package main

import (
	"fmt"
	"strconv"

	wl "deedles.dev/wlengine/client"
	"deedles.dev/wlengine/protocol"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
)

var globalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "List the compositor's globals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, r, err := connect()
		if err != nil {
			return err
		}
		defer c.Disconnect()

		fmt.Fprintln(cmd.OutOrStdout(), globalsTable(r.Globals()))
		return nil
	},
}

func globalsTable(globals []wl.Global) string {
	rows := make([][]string, 0, len(globals))
	for _, g := range globals {
		supported := "-"
		if v := protocol.SupportedVersion(g.Interface); v > 0 {
			supported = strconv.FormatUint(uint64(v), 10)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(g.Name), 10),
			g.Interface,
			strconv.FormatUint(uint64(g.Version), 10),
			supported,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case (col == 3) && (rows[row][3] == "-"):
				return missingStyle
			default:
				return cellStyle
			}
		}).
		Headers("NAME", "INTERFACE", "VERSION", "SUPPORTED").
		Rows(rows...)

	return t.String()
}
