package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type column struct {
	title string
	right bool
}

// lastColumnWidth caps the final column so long container commands wrap
// instead of producing very wide tables in scheduler logs.
const lastColumnWidth = 100

// renderTable draws rows under columns with ASCII borders. Short rows are
// padded with empty cells.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.right {
			configs[i].Align = text.AlignRight
		}
	}
	last := &configs[len(configs)-1]
	last.WidthMax = lastColumnWidth
	last.WidthMaxEnforcer = text.WrapSoft

	tw.AppendHeader(header)
	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
