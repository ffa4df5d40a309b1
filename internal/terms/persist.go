package terms

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// document is the on-disk shape of the store. Unknown top-level keys are
// dropped on the next write.
type document struct {
	Entries []Entry `json:"entries"`
}

// rawDocument keeps entries untyped so that each one can be validated (and
// skipped) individually during a load.
type rawDocument struct {
	Entries []Payload `json:"entries"`
}

// encodeDocument renders entries with two-space indentation and without
// HTML escaping, so the file stays readable and diffable.
func encodeDocument(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{Entries: entries}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeDocument parses data into untyped entries. Numbers are kept as
// [json.Number] so that priorities survive without float rounding.
func decodeDocument(data []byte) ([]Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc rawDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// writeFileAtomic writes data to a temporary sibling of path and renames it
// over path, so readers only ever observe a complete document.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func digest(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}
