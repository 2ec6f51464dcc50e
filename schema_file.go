// Schema sidecar: a small JSON file next to a Bucket's record file that
// records the schema it was created with, so reopening the bucket with a
// different schema fails fast instead of misreading bytes.
//
// Grounded on the teacher's header.go (a small authoritative file read once
// at Open), using goccy/go-json for the encoding (the same JSON library
// calvinalkan-agent-task uses for its on-disk documents) and
// natefinch/atomic for crash-safe writes (calvinalkan-agent-task's
// cache_binary.go and ticket.go write every on-disk document the same way).
package recordstore

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

type schemaFieldDoc struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FixedLen int    `json:"fixed_len,omitempty"`
}

type schemaDoc struct {
	Fields []schemaFieldDoc `json:"fields"`
}

func schemaToDoc(s Schema) schemaDoc {
	doc := schemaDoc{Fields: make([]schemaFieldDoc, len(s.Fields))}
	for i, f := range s.Fields {
		doc.Fields[i] = schemaFieldDoc{Name: f.Name, Kind: f.Kind.String(), FixedLen: f.FixedLen}
	}
	return doc
}

func kindFromString(s string) (Kind, error) {
	switch s {
	case "Int32":
		return KindInt32, nil
	case "Int64":
		return KindInt64, nil
	case "Boolean":
		return KindBoolean, nil
	case "Single":
		return KindSingle, nil
	case "Double":
		return KindDouble, nil
	case "DateTime":
		return KindDateTime, nil
	case "TimeSpan":
		return KindTimeSpan, nil
	case "Guid":
		return KindGuid, nil
	case "String":
		return KindString, nil
	case "FixedSizeByteArray":
		return KindFixedSizeByteArray, nil
	default:
		return 0, schemaMismatch(fmt.Sprintf("unknown field kind %q", s))
	}
}

func docToSchema(doc schemaDoc) (Schema, error) {
	fields := make([]Field, len(doc.Fields))
	for i, fd := range doc.Fields {
		kind, err := kindFromString(fd.Kind)
		if err != nil {
			return Schema{}, err
		}
		fields[i] = Field{Name: fd.Name, Kind: kind, FixedLen: fd.FixedLen}
	}
	return NewSchema(fields...)
}

// writeSchemaSidecar atomically writes schema's description to path.
func writeSchemaSidecar(path string, schema Schema) error {
	data, err := json.MarshalIndent(schemaToDoc(schema), "", "  ")
	if err != nil {
		return fmt.Errorf("recordstore: encoding schema sidecar: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("recordstore: writing schema sidecar %q: %w", path, err)
	}
	return nil
}

// readSchemaSidecar reads and parses the schema sidecar at path. ok is false
// if the file does not exist.
func readSchemaSidecar(path string) (schema Schema, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Schema{}, false, nil
		}
		return Schema{}, false, fmt.Errorf("recordstore: reading schema sidecar %q: %w", path, err)
	}
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Schema{}, false, decodeError(fmt.Sprintf("schema sidecar %q: %v", path, err))
	}
	schema, err = docToSchema(doc)
	if err != nil {
		return Schema{}, false, err
	}
	return schema, true, nil
}

// LoadSchemaDescription reads a human-authored schema description file —
// JSON with comments and trailing commas tolerated — and returns the Schema
// it declares. This is the file format the static convenience layer (see
// static.go) can build a schema from without a Go struct, standardizing the
// source to strict JSON with hujson before decoding with the same
// goccy/go-json decoder the sidecar uses.
func LoadSchemaDescription(path string) (Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("recordstore: reading schema description %q: %w", path, err)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Schema{}, decodeError(fmt.Sprintf("schema description %q: %v", path, err))
	}
	var doc schemaDoc
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return Schema{}, decodeError(fmt.Sprintf("schema description %q: %v", path, err))
	}
	return docToSchema(doc)
}

// ensureSchemaSidecar writes path if it doesn't exist, or verifies schema
// matches an existing one, returning ErrSchemaMismatch if not.
func ensureSchemaSidecar(path string, schema Schema) error {
	existing, ok, err := readSchemaSidecar(path)
	if err != nil {
		return err
	}
	if !ok {
		return writeSchemaSidecar(path, schema)
	}
	if !existing.Equal(schema) {
		return schemaMismatch(fmt.Sprintf("sidecar %q does not match the schema passed to Open", path))
	}
	return nil
}
