package report

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// XMLFileName is the name of the XML report inside a report directory.
	XMLFileName = "report.xml"
	// JSONFileName is the name of the JSON report inside a report directory.
	JSONFileName = "report.json"
)

// WriteXML writes r as xUnit v2 style XML.
func WriteXML(w io.Writer, r *Report) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing xml header: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding xml report: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("writing xml report: %w", err)
	}

	return nil
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding json report: %w", err)
	}

	return nil
}

// Formats selects the files WriteDir produces.
type Formats struct {
	XML  bool
	JSON bool
}

// WriteDir writes the selected report files into dir, creating it when
// needed, and returns the paths written.
func WriteDir(dir string, r *Report, formats Formats) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}

	var written []string

	if formats.XML {
		path := filepath.Join(dir, XMLFileName)
		if err := writeFile(path, r, WriteXML); err != nil {
			return written, err
		}

		written = append(written, path)
	}

	if formats.JSON {
		path := filepath.Join(dir, JSONFileName)
		if err := writeFile(path, r, WriteJSON); err != nil {
			return written, err
		}

		written = append(written, path)
	}

	return written, nil
}

func writeFile(path string, r *Report, write func(io.Writer, *Report) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}

	if err := write(f, r); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}

	return nil
}

// ReadJSON loads a report previously written by WriteJSON.
func ReadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	return DecodeJSON(data)
}

// DecodeJSON parses a report produced by WriteJSON.
func DecodeJSON(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	return &r, nil
}
