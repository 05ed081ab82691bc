package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Writer persists documents into one directory.
type Writer struct {
	Dir    string
	Format string
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Write stores doc as <dir>/<name>.<format> and returns the file path.
func (w Writer) Write(name string, doc *Document) (string, error) {
	format := strings.ToLower(w.Format)
	if format == "" {
		format = FormatJSON
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
	case FormatYAML, "yml":
		format = FormatYAML
		data, err = yaml.Marshal(doc)
	default:
		return "", fmt.Errorf("unsupported output format %q", w.Format)
	}
	if err != nil {
		return "", err
	}

	if w.Dir != "" && !exists(w.Dir) {
		if err := os.MkdirAll(w.Dir, os.FileMode(0755)); err != nil {
			return "", err
		}
	}

	filename := filepath.Join(w.Dir, fmt.Sprintf("%s.%s", name, format))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", err
	}

	return filename, nil
}

// Read loads a document written by Write, picking the decoder by extension.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc := &Document{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, doc)
	default:
		err = json.Unmarshal(data, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return doc, nil
}
