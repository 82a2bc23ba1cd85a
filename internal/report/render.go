package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormat reports whether Write accepts format.
func ValidFormat(format string) bool {
	switch format {
	case FormatText, FormatJSON, FormatYAML, "":
		return true
	}
	return false
}

// Write renders the summary in the named format.
func (s Summary) Write(w io.Writer, format string) error {
	switch format {
	case FormatText, "":
		return s.WriteText(w)
	case FormatJSON:
		return s.WriteJSON(w)
	case FormatYAML:
		return s.WriteYAML(w)
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

// WriteText renders a human-readable summary.
func (s Summary) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	mode := ""
	if s.DryRun {
		mode = " (dry run, nothing written)"
	}

	fmt.Fprintf(ew, "Run %s%s\n", s.RunID, mode)
	fmt.Fprintf(ew, "File:      %s\n", s.File)
	fmt.Fprintf(ew, "Duration:  %dms\n", s.DurationMS)
	fmt.Fprintf(ew, "Rows:      %d\n", s.Total)
	fmt.Fprintf(ew, "Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(ew, "Failed:    %d\n", s.Failed)

	if s.Failed > 0 {
		kinds := make([]string, 0, len(s.ByKind))
		for k := range s.ByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(ew, "  %-10s %d\n", k, s.ByKind[model.ErrorKind(k)])
		}

		fmt.Fprintln(ew, "\nFailures:")
		tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tID\tKIND\tERROR")
		for _, f := range s.Failures {
			kind := string(f.Kind)
			if f.Reason != "" {
				kind += "/" + string(f.Reason)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.Line, f.ID, kind, f.Message)
		}
		_ = tw.Flush()
	}

	return eris.Wrap(ew.err, "report: write text")
}

// errWriter keeps the first write error and drops every write after it.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// WriteJSON renders the summary as indented JSON.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(s), "report: write json")
}

// WriteYAML renders the summary as YAML.
func (s Summary) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return eris.Wrap(err, "report: write yaml")
	}
	return eris.Wrap(enc.Close(), "report: write yaml")
}
