package terms

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of an import file.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

var (
	// ErrEmptyImport is returned by [ParseImport] for an empty input.
	ErrEmptyImport = errors.New("terms: import payload is empty")

	// ErrInvalidImport is returned by [ParseImport] when the input cannot be
	// decoded or has an unsupported shape.
	ErrInvalidImport = errors.New("terms: import payload is invalid")
)

// payloadKeys are the fields an import row may carry; anything else is
// dropped before validation.
var payloadKeys = []string{"id", "src", "dst", "type", "priority", "notes", "active"}

// FormatFromName picks the import format from a file name's extension.
// Unknown extensions are treated as CSV.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCSV
	}
}

// ParseFormat converts a user-supplied format name into a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("terms: unknown import format %q", s)
	}
}

// ParseImport decodes the rows of an import file.
//
// JSON and YAML inputs may be either the canonical document
// ({"entries": [...]}) or a bare list of entries; list items that are not
// objects are ignored. CSV inputs need a header row naming the fields.
// Every row is reduced to the known entry fields with null values removed;
// validation is left to [Store.Import].
func ParseImport(r io.Reader, format Format) ([]Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("terms: read import: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyImport
	}

	switch format {
	case FormatJSON:
		return parseJSONImport(data)
	case FormatYAML:
		return parseYAMLImport(data)
	case FormatCSV, "":
		return parseCSVImport(data)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidImport, format)
	}
}

func parseJSONImport(data []byte) ([]Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %w", ErrInvalidImport, err)
	}
	return payloadsFrom(doc)
}

func parseYAMLImport(data []byte) ([]Payload, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: not valid YAML: %w", ErrInvalidImport, err)
	}
	return payloadsFrom(doc)
}

// payloadsFrom extracts rows from a decoded JSON or YAML document.
func payloadsFrom(doc any) ([]Payload, error) {
	var rows any
	switch d := doc.(type) {
	case map[string]any:
		rows = d["entries"]
		if rows == nil {
			return []Payload{}, nil
		}
	case []any:
		rows = d
	default:
		return nil, fmt.Errorf("%w: unsupported document structure", ErrInvalidImport)
	}

	list, ok := rows.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: entries must be a list", ErrInvalidImport)
	}
	out := make([]Payload, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, cleanPayload(m))
	}
	return out, nil
}

func parseCSVImport(data []byte) ([]Payload, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: not valid CSV: %w", ErrInvalidImport, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyImport
	}

	header := records[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	out := make([]Payload, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		out = append(out, cleanPayload(row))
	}
	return out, nil
}

// cleanPayload keeps only the known entry fields of row and drops null
// values.
func cleanPayload(row map[string]any) Payload {
	p := make(Payload, len(payloadKeys))
	for _, k := range payloadKeys {
		if v, ok := row[k]; ok && v != nil {
			p[k] = v
		}
	}
	return p
}

// WriteDocument writes entries to w in the canonical document format used by
// the store's backing file.
func WriteDocument(w io.Writer, entries []Entry) error {
	data, err := encodeDocument(entries)
	if err != nil {
		return fmt.Errorf("terms: export: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("terms: export: %w", err)
	}
	return nil
}
