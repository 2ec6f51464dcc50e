// Record schema: an ordered list of named, fixed-width typed properties
// (spec §3).
package recordstore

import "fmt"

// Kind identifies a scalar property type.
type Kind int

const (
	KindInt32 Kind = iota + 1
	KindInt64
	KindBoolean
	KindSingle
	KindDouble
	KindDateTime
	KindTimeSpan
	KindGuid
	KindString
	KindFixedSizeByteArray
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindBoolean:
		return "Boolean"
	case KindSingle:
		return "Single"
	case KindDouble:
		return "Double"
	case KindDateTime:
		return "DateTime"
	case KindTimeSpan:
		return "TimeSpan"
	case KindGuid:
		return "Guid"
	case KindString:
		return "String"
	case KindFixedSizeByteArray:
		return "FixedSizeByteArray"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// fixedWidth returns the on-disk width of kind, or 0 for KindFixedSizeByteArray
// (whose width is the field's declared FixedLen) and KindString (whose width
// is always 12: an 8-byte heap offset plus a 4-byte length, per spec §3).
func (k Kind) fixedWidth() int {
	switch k {
	case KindInt32, KindSingle:
		return 4
	case KindInt64, KindDouble, KindDateTime, KindTimeSpan:
		return 8
	case KindBoolean:
		return 1
	case KindGuid:
		return 16
	case KindString:
		return 12
	default:
		return 0
	}
}

// Field describes one schema property.
type Field struct {
	Name string
	Kind Kind
	// FixedLen is the byte length N for KindFixedSizeByteArray fields. It
	// must be unset (zero) for every other kind.
	FixedLen int
}

// Width returns the field's fixed on-disk byte width.
func (f Field) Width() int {
	if f.Kind == KindFixedSizeByteArray {
		return f.FixedLen
	}
	return f.Kind.fixedWidth()
}

// Schema is an ordered list of named properties. Its Width is constant for
// the lifetime of a store.
type Schema struct {
	Fields []Field
}

// NewSchema validates and returns a Schema built from fields.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{Fields: fields}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate checks that every field name is unique and non-empty, every kind
// is recognized, and every FixedSizeByteArray field declares a positive
// length (and no other kind does).
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return schemaMismatch("schema must declare at least one field")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return schemaMismatch("field name must not be empty")
		}
		if seen[f.Name] {
			return schemaMismatch(fmt.Sprintf("duplicate field name %q", f.Name))
		}
		seen[f.Name] = true

		switch f.Kind {
		case KindInt32, KindInt64, KindBoolean, KindSingle, KindDouble,
			KindDateTime, KindTimeSpan, KindGuid, KindString:
			if f.FixedLen != 0 {
				return schemaMismatch(fmt.Sprintf("field %q: FixedLen only applies to FixedSizeByteArray", f.Name))
			}
		case KindFixedSizeByteArray:
			if f.FixedLen <= 0 {
				return schemaMismatch(fmt.Sprintf("field %q: FixedSizeByteArray requires a positive length", f.Name))
			}
		default:
			return schemaMismatch(fmt.Sprintf("field %q: unknown kind %v", f.Name, f.Kind))
		}
	}
	return nil
}

// Width returns the constant record width W: the sum of every field's width.
func (s Schema) Width() int {
	w := 0
	for _, f := range s.Fields {
		w += f.Width()
	}
	return w
}

// IndexOf returns the position of name in the schema, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether s and other declare the same fields, in the same
// order, with the same kinds and fixed lengths.
func (s Schema) Equal(other Schema) bool {
	if len(s.Fields) != len(other.Fields) {
		return false
	}
	for i, f := range s.Fields {
		g := other.Fields[i]
		if f.Name != g.Name || f.Kind != g.Kind || f.FixedLen != g.FixedLen {
			return false
		}
	}
	return true
}
