// Binary record layout: encoding and decoding of individual scalar fields
// to/from their fixed-width on-disk representation (spec §4.4).
package recordstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Item is a single dynamic record: a value per schema field, keyed by field
// name. Per spec §9's design note, Item is the core's only record
// representation; the static convenience layer (static.go) builds and reads
// Items on behalf of typed Go values, using reflection that never reaches
// this file.
//
// Expected Go types per Kind:
//
//	Int32               int32
//	Int64               int64
//	Boolean             bool
//	Single              float32
//	Double              float64
//	DateTime            time.Time
//	TimeSpan            time.Duration
//	Guid                uuid.UUID
//	String              *string (nil = null, non-nil = value, "" = empty)
//	FixedSizeByteArray  []byte (zero-padded or truncated to N bytes)
type Item map[string]any

// validateItem checks that item carries exactly the schema's declared
// properties, each holding a value of the expected Go type.
func validateItem(schema Schema, item Item) error {
	if len(item) != len(schema.Fields) {
		return schemaMismatch(fmt.Sprintf("item has %d properties, schema declares %d", len(item), len(schema.Fields)))
	}
	for _, f := range schema.Fields {
		v, ok := item[f.Name]
		if !ok {
			return schemaMismatch(fmt.Sprintf("item missing declared property %q", f.Name))
		}
		if err := checkKind(f, v); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(f Field, v any) error {
	typeErr := func() error {
		return schemaMismatch(fmt.Sprintf("property %q: value of type %T does not match kind %v", f.Name, v, f.Kind))
	}
	switch f.Kind {
	case KindInt32:
		if _, ok := v.(int32); !ok {
			return typeErr()
		}
	case KindInt64:
		if _, ok := v.(int64); !ok {
			return typeErr()
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return typeErr()
		}
	case KindSingle:
		if _, ok := v.(float32); !ok {
			return typeErr()
		}
	case KindDouble:
		if _, ok := v.(float64); !ok {
			return typeErr()
		}
	case KindDateTime:
		if _, ok := v.(time.Time); !ok {
			return typeErr()
		}
	case KindTimeSpan:
		if _, ok := v.(time.Duration); !ok {
			return typeErr()
		}
	case KindGuid:
		if _, ok := v.(uuid.UUID); !ok {
			return typeErr()
		}
	case KindString:
		if v != nil {
			if _, ok := v.(*string); !ok {
				return typeErr()
			}
		}
	case KindFixedSizeByteArray:
		b, ok := v.([]byte)
		if !ok {
			return typeErr()
		}
		_ = b
	}
	return nil
}

// encodeScalar writes the fixed-width representation of a non-String field
// into buf, which must be exactly f.Width() bytes.
func encodeScalar(buf []byte, f Field, v any) {
	switch f.Kind {
	case KindInt32:
		binary.LittleEndian.PutUint32(buf, uint32(v.(int32)))
	case KindInt64:
		binary.LittleEndian.PutUint64(buf, uint64(v.(int64)))
	case KindBoolean:
		if v.(bool) {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case KindSingle:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.(float32)))
	case KindDouble:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.(float64)))
	case KindDateTime:
		binary.LittleEndian.PutUint64(buf, uint64(DateTimeToTicks(v.(time.Time))))
	case KindTimeSpan:
		binary.LittleEndian.PutUint64(buf, uint64(TimeSpanToTicks(v.(time.Duration))))
	case KindGuid:
		id := v.(uuid.UUID)
		copy(buf, id[:])
	case KindFixedSizeByteArray:
		b := v.([]byte)
		n := copy(buf, b)
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	default:
		panic(fmt.Sprintf("encodeScalar: unexpected kind %v", f.Kind))
	}
}

// decodeScalar parses the fixed-width representation of a non-String field
// from buf, which must be exactly f.Width() bytes.
func decodeScalar(buf []byte, f Field) any {
	switch f.Kind {
	case KindInt32:
		return int32(binary.LittleEndian.Uint32(buf))
	case KindInt64:
		return int64(binary.LittleEndian.Uint64(buf))
	case KindBoolean:
		return buf[0] != 0
	case KindSingle:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf))
	case KindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case KindDateTime:
		return TicksToDateTime(int64(binary.LittleEndian.Uint64(buf)))
	case KindTimeSpan:
		return TicksToTimeSpan(int64(binary.LittleEndian.Uint64(buf)))
	case KindGuid:
		var id uuid.UUID
		copy(id[:], buf)
		return id
	case KindFixedSizeByteArray:
		b := make([]byte, len(buf))
		copy(b, buf)
		return b
	default:
		panic(fmt.Sprintf("decodeScalar: unexpected kind %v", f.Kind))
	}
}

// encodeStringRef writes a 12-byte offset||length pair.
func encodeStringRef(buf []byte, ref StringRef) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ref.Offset))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(ref.Length))
}

// decodeStringRef parses a 12-byte offset||length pair.
func decodeStringRef(buf []byte) StringRef {
	offset := int64(binary.LittleEndian.Uint64(buf[0:8]))
	length := int32(binary.LittleEndian.Uint32(buf[8:12]))
	return StringRef{Offset: offset, Length: length}
}
