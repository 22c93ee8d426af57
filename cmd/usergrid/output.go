package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"usergrid/internal/grid"
	"usergrid/pkg/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type jsonRow struct {
	domain.User
	Dirty []domain.Field `json:"dirty,omitempty"`
}

// writeRows prints rows as a table, marking dirty cells with a trailing '*'.
func writeRows(w io.Writer, format string, rows []grid.Row) error {
	if format == outputJSON {
		out := make([]jsonRow, 0, len(rows))
		for _, r := range rows {
			jr := jsonRow{User: r.User}
			for _, f := range domain.Fields() {
				if r.Dirty[f] {
					jr.Dirty = append(jr.Dirty, f)
				}
			}
			out = append(out, jr)
		}
		return writeJSON(w, out)
	}
	tw := tabwriter.NewWriter(w, 6, 4, 3, ' ', 0)
	header := []string{"ID"}
	for _, f := range domain.Fields() {
		header = append(header, strings.ToUpper(strings.ReplaceAll(string(f), "_", " ")))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		id := r.User.ID
		if id == "" {
			id = "(new) " + r.User.LocalKey
		}
		cells := []string{id}
		for _, f := range domain.Fields() {
			v := r.User.Value(f)
			if r.Dirty[f] {
				v += "*"
			}
			if v == "" {
				v = "-"
			}
			cells = append(cells, v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
