package commands

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

func printTable(w io.Writer, title string, rows [][2]any) {
	if w == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)

	for _, row := range rows {
		t.AppendRow(table.Row{row[0], row[1]})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
