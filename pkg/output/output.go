package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Format selects how records are rendered.
type Format string

const (
	Stdout Format = ""
	JSON   Format = "json"
	Text   Format = "txt"
	CSV    Format = "csv"
	Excel  Format = "excel"
	HTML   Format = "html"
)

// Formats lists the file formats accepted on the command line.
var Formats = []Format{Text, JSON, CSV, Excel, HTML}

var extensions = map[Format]string{
	JSON:  ".json",
	Text:  ".txt",
	CSV:   ".csv",
	Excel: ".xlsx",
	HTML:  ".html",
}

// ParseFormat validates a format name. An empty name selects stdout.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == Stdout {
		return f, nil
	}
	if f.Extension() == "" {
		return "", fmt.Errorf("unknown output format %q (want one of %s)", s, FormatList())
	}
	return f, nil
}

// FormatList renders Formats for help and error text.
func FormatList() string {
	names := make([]string, 0, len(Formats))
	for _, f := range Formats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// Extension returns the file suffix for f.
func (f Format) Extension() string {
	return extensions[f]
}

// WriteError wraps a filesystem failure while writing a report.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer renders records to a file or to Stdout.
type Writer struct {
	Stdout io.Writer
}

// Write renders records in format. For file formats the extension is added
// to base and the resulting path is returned; existing files are replaced.
func (w Writer) Write(format Format, base string, records []record.Record) (string, error) {
	if format == Stdout {
		out := w.Stdout
		if out == nil {
			out = os.Stdout
		}
		return "", writeStdout(out, records)
	}
	ext := format.Extension()
	if ext == "" {
		return "", fmt.Errorf("unknown output format %q", format)
	}
	path := base + ext
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", &WriteError{Path: path, Err: err}
		}
	}
	var err error
	switch format {
	case Excel:
		err = writeExcel(path, records)
	default:
		err = writeFile(path, func(out io.Writer) error {
			switch format {
			case JSON:
				return writeJSON(out, records)
			case Text:
				return writeText(out, records)
			case CSV:
				return writeCSV(out, records)
			default:
				return writeHTML(out, filepath.Base(base), records)
			}
		})
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	bw := bufio.NewWriter(f)
	if err := render(bw); err != nil {
		f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc
}

func writeJSON(w io.Writer, records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	return newEncoder(w).Encode(records)
}

func writeStdout(w io.Writer, records []record.Record) error {
	enc := newEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// writeText emits one line per record with sorted key=value pairs. Nested
// objects render the same way, without braces.
func writeText(w io.Writer, records []record.Record) error {
	for _, r := range records {
		if _, err := io.WriteString(w, textPairs(r)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func textPairs(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+textValue(m[k]))
	}
	return strings.Join(pairs, ", ")
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil, string, bool, float64, json.Number, int, int64:
		return cell(v, "None")
	case map[string]interface{}:
		return textPairs(t)
	case []interface{}:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, textValue(item))
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	// Typed slices and maps are brought back to generic JSON values first.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return string(b)
	}
	return textValue(generic)
}

// Table lays records out as rows under the sorted union of their keys.
// Missing and null cells hold NA; nested values are compact JSON.
func Table(records []record.Record) ([]string, [][]string) {
	set := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(set))
	for k := range set {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = cell(r[c], NA)
		}
		rows = append(rows, row)
	}
	return columns, rows
}

// NA fills tabular cells that have no value.
const NA = "NA"

func cell(v interface{}, missing string) string {
	switch t := v.(type) {
	case nil:
		return missing
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	case json.Number:
		return t.String()
	case int, int64:
		return fmt.Sprint(t)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}

// ReportName builds "<dir>/<prefix>_<yy-mm-dd>UTC_<HH-MM-SS>" from now in UTC.
func ReportName(dir, prefix string, now time.Time) string {
	return filepath.Join(dir, prefix+"_"+now.UTC().Format("06-01-02UTC_15-04-05"))
}

// Strings turns a list of values into single column records under key.
func Strings(key string, values []string) []record.Record {
	out := make([]record.Record, 0, len(values))
	for _, v := range values {
		out = append(out, record.Record{key: v})
	}
	return out
}
