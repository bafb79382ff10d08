package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML, or calls table for the default format.
func render(w io.Writer, format string, v interface{}, table func(t *tableWriter)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Go through JSON so YAML keys match the API field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := &tableWriter{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
		table(t)
		return t.tw.Flush()
	}
}

type tableWriter struct {
	tw *tabwriter.Writer
}

func (t *tableWriter) Row(cells ...string) {
	fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
}
