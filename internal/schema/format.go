package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a serialization format for todo documents.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	// FormatJSONL is one JSON todo per line, without the document wrapper
	FormatJSONL Format = "jsonl"
)

// Document is the top-level shape of an exported todo list.
type Document struct {
	Todos []Todo `json:"todos" yaml:"todos" toml:"todos"`
}

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, jsonl, yaml or toml)", s)
	}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Encode writes todos to w as a Document in the given format.
func Encode(w io.Writer, format Format, todos []Todo) error {
	doc := Document{Todos: todos}
	if doc.Todos == nil {
		doc.Todos = []Todo{}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, todo := range doc.Todos {
			if err := enc.Encode(todo); err != nil {
				return fmt.Errorf("failed to encode jsonl: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

// Decode reads a Document in the given format and validates every todo.
// JSON input may also be a bare array of todos.
func Decode(r io.Reader, format Format) ([]Todo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var doc Document
	switch format {
	case FormatJSON:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, &doc.Todos)
		} else {
			err = json.Unmarshal(trimmed, &doc)
		}
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSONL:
		doc.Todos, err = decodeJSONL(data)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}

	for i := range doc.Todos {
		doc.Todos[i].CreatedAt = TruncateMillis(doc.Todos[i].CreatedAt)
		if err := doc.Todos[i].Validate(); err != nil {
			return nil, fmt.Errorf("todo #%d: %w", i+1, err)
		}
	}
	return doc.Todos, nil
}

func decodeJSONL(data []byte) ([]Todo, error) {
	var todos []Todo
	dec := json.NewDecoder(bytes.NewReader(data))
	for line := 1; ; line++ {
		var todo Todo
		if err := dec.Decode(&todo); err != nil {
			if errors.Is(err, io.EOF) {
				return todos, nil
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", line, err)
		}
		todos = append(todos, todo)
	}
}
