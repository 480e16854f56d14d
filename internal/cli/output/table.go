// Package output renders CLI results as plain tables.
package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table collects rows under fixed headers.
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table without borders, left aligned.
func (t *Table) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.headers)
	style(table)
	table.AppendBulk(t.rows)
	table.Render()
}

// KeyValues prints label/value pairs, one per line.
func KeyValues(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)
	style(table)
	table.SetColumnSeparator(":")
	for _, p := range pairs {
		table.Append([]string{p[0], p[1]})
	}
	table.Render()
}

func style(table *tablewriter.Table) {
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
}
