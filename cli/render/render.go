// Package render provides output rendering for the xrayview CLI.
//
// Format selection:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format always overrides the default
//   - Invalid formats are errors
//
// --no-color affects table output only. The interactive UI has its own
// styling.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/xrayview/metrics"
	"github.com/pithecene-io/xrayview/view"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Analysis is the output of the analyze command.
type Analysis struct {
	Page    view.Page         `json:"page" yaml:"page"`
	Saved   map[string]string `json:"saved,omitempty" yaml:"saved,omitempty"`
	Metrics metrics.Snapshot  `json:"metrics" yaml:"metrics"`
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
	style   *lipgloss.Renderer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), os.Stdout), nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	style := lipgloss.NewRenderer(out)
	if noColor {
		style.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
		style:   style,
	}
}

// Format returns the selected format.
func (r *Renderer) Format() Format { return r.format }

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) renderTable(data any) error {
	switch d := data.(type) {
	case view.Page:
		return r.renderPage(d)
	case *view.Page:
		return r.renderPage(*d)
	case Analysis:
		return r.renderAnalysis(d)
	case *Analysis:
		return r.renderAnalysis(*d)
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}
	return r.renderStructTable(data)
}

func (r *Renderer) heading(s string) string {
	return r.style.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render(s)
}

func (r *Renderer) errorText(s string) string {
	return r.style.NewStyle().Bold(true).Foreground(lipgloss.Color("9")).Render(s)
}

func (r *Renderer) dim(s string) string {
	return r.style.NewStyle().Faint(true).Render(s)
}

// renderPage prints the page top to bottom in display order.
func (r *Renderer) renderPage(p view.Page) error {
	fmt.Fprintln(r.out, r.heading(p.Title))
	file := p.SelectedFile
	if file == "" {
		file = view.NoFileSelected
	}
	fmt.Fprintf(r.out, "%s %s\n", p.FileLabel, file)

	button := "[" + p.Button.Label + "]"
	if p.Button.Disabled {
		button = r.dim(button)
	}
	fmt.Fprintln(r.out, button)

	if p.ErrorBanner != "" {
		fmt.Fprintln(r.out, r.errorText("Error: "+p.ErrorBanner))
	}

	if len(p.Images) > 0 {
		fmt.Fprintln(r.out)
		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		for _, img := range p.Images {
			url := img.URL
			if !img.Visible {
				url += " " + r.dim("(loading)")
			}
			fmt.Fprintf(w, "%s:\t%s\n", img.Title, url)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(p.Findings) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.heading("Findings"))
		for _, f := range p.Findings {
			fmt.Fprintf(r.out, "  - %s\n", f.Label)
		}
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.heading(p.Report.Title))
	switch p.Report.Kind {
	case view.ReportKindError:
		fmt.Fprintln(r.out, r.errorText(p.Report.Text))
	case view.ReportKindText:
		fmt.Fprintln(r.out, p.Report.Text)
	default:
		fmt.Fprintln(r.out, r.dim(p.Report.Text))
	}
	return nil
}

func (r *Renderer) renderAnalysis(a Analysis) error {
	if err := r.renderPage(a.Page); err != nil {
		return err
	}
	if len(a.Saved) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.heading("Saved"))
		if err := r.renderStructTable(a.Saved); err != nil {
			return err
		}
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.heading("Metrics"))
	return r.renderStructTable(a.Metrics)
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	headers := r.getHeaders(v.Index(0))
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for i := 0; i < v.Len(); i++ {
		fmt.Fprintln(w, strings.Join(r.getRowValues(v.Index(i), headers), "\t"))
	}
	return w.Flush()
}

func (r *Renderer) renderStructTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fmt.Fprintf(w, "%s:\t%s\n", r.getFieldName(t.Field(i)), r.formatValue(v.Field(i)))
		}
	case reflect.Map:
		for _, key := range sortedKeys(v) {
			fmt.Fprintf(w, "%s:\t%s\n", key, r.formatValue(mapIndex(v, key)))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

func (r *Renderer) getHeaders(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var headers []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				headers = append(headers, r.getFieldName(t.Field(i)))
			}
		}
	case reflect.Map:
		headers = sortedKeys(v)
	}
	return headers
}

func (r *Renderer) getRowValues(v reflect.Value, headers []string) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var values []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				values = append(values, r.formatValue(v.Field(i)))
			}
		}
	case reflect.Map:
		for _, h := range headers {
			values = append(values, r.formatValue(mapIndex(v, h)))
		}
	}
	return values
}

func (r *Renderer) getFieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

func (r *Renderer) formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if ts, ok := v.Interface().(time.Time); ok {
			if ts.IsZero() {
				return ""
			}
			return ts.Format(time.RFC3339)
		}
		return "{...}"
	case reflect.String:
		s := v.String()
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			return s[:i] + " ..."
		}
		return s
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// sortedKeys returns string map keys in order. Only string-keyed maps
// are rendered as tables.
func sortedKeys(v reflect.Value) []string {
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		if k.Kind() == reflect.String {
			keys = append(keys, k.String())
		}
	}
	sort.Strings(keys)
	return keys
}

func mapIndex(m reflect.Value, key string) reflect.Value {
	return m.MapIndex(reflect.ValueOf(key).Convert(m.Type().Key()))
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
