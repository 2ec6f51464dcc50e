// Static convenience layer: a typed wrapper over the dynamic Item-based core,
// built entirely with reflection so Bucket/WriteBuffer/Partitioner never see
// a struct type (spec §9's design note).
//
// Grounded on the teacher's approach to optional typed conveniences layered
// strictly outside its core document model (folio's core never knows about
// any caller-defined Go type; typed helpers, where the teacher has them,
// convert to/from its dynamic document shape at the boundary).
package recordstore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	guidType     = reflect.TypeOf(uuid.UUID{})
	stringPtr    = reflect.TypeOf((*string)(nil))
)

// staticField binds one schema field to a field of a Go struct type.
type staticField struct {
	Field
	structIndex int
	isStringPtr bool // true if the Go struct field is itself *string
}

// DeclareSchema builds a Schema from exampleStruct's exported fields. Each
// field is included unless tagged `recordstore:"-"`; the property name and
// kind default to the field's Go name and inferred Go type, and can be
// overridden with `recordstore:"Name,kind=Int64"` / `recordstore:"Name,kind=FixedSizeByteArray,len=20"`.
func DeclareSchema(exampleStruct any) (Schema, error) {
	schema, _, err := declareSchemaFields(exampleStruct)
	return schema, err
}

func declareSchemaFields(exampleStruct any) (Schema, []staticField, error) {
	t := reflect.TypeOf(exampleStruct)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return Schema{}, nil, schemaMismatch("DeclareSchema requires a struct or pointer-to-struct value")
	}

	var fields []Field
	var bindings []staticField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		name, kindOverride, fixedLen, skip, err := parseStaticTag(sf)
		if err != nil {
			return Schema{}, nil, err
		}
		if skip {
			continue
		}

		kind, isStringPtr, inferredLen, err := inferKind(sf.Type, kindOverride)
		if err != nil {
			return Schema{}, nil, fmt.Errorf("field %q: %w", sf.Name, err)
		}
		if fixedLen == 0 {
			fixedLen = inferredLen
		}

		f := Field{Name: name, Kind: kind, FixedLen: fixedLen}
		fields = append(fields, f)
		bindings = append(bindings, staticField{Field: f, structIndex: i, isStringPtr: isStringPtr})
	}

	schema, err := NewSchema(fields...)
	if err != nil {
		return Schema{}, nil, err
	}
	return schema, bindings, nil
}

func parseStaticTag(sf reflect.StructField) (name string, kindOverride string, fixedLen int, skip bool, err error) {
	tag, ok := sf.Tag.Lookup("recordstore")
	name = sf.Name
	if !ok {
		return name, "", 0, false, nil
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", "", 0, true, nil
	}
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		kv := strings.SplitN(opt, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "kind":
			kindOverride = kv[1]
		case "len":
			n, convErr := strconv.Atoi(kv[1])
			if convErr != nil {
				return "", "", 0, false, schemaMismatch(fmt.Sprintf("field %q: invalid len tag %q", sf.Name, kv[1]))
			}
			fixedLen = n
		}
	}
	return name, kindOverride, fixedLen, false, nil
}

func inferKind(t reflect.Type, override string) (kind Kind, isStringPtr bool, fixedLen int, err error) {
	if override != "" {
		kind, err = kindFromString(override)
		return kind, t == stringPtr, fixedLen, err
	}

	switch {
	case t == timeType:
		return KindDateTime, false, 0, nil
	case t == durationType:
		return KindTimeSpan, false, 0, nil
	case t == guidType:
		return KindGuid, false, 0, nil
	case t == stringPtr:
		return KindString, true, 0, nil
	}

	switch t.Kind() {
	case reflect.Int32:
		return KindInt32, false, 0, nil
	case reflect.Int, reflect.Int64:
		return KindInt64, false, 0, nil
	case reflect.Bool:
		return KindBoolean, false, 0, nil
	case reflect.Float32:
		return KindSingle, false, 0, nil
	case reflect.Float64:
		return KindDouble, false, 0, nil
	case reflect.String:
		return KindString, false, 0, nil
	case reflect.Array:
		if t.Elem().Kind() != reflect.Uint8 {
			return 0, false, 0, schemaMismatch(fmt.Sprintf("unsupported array element type %v", t.Elem()))
		}
		return KindFixedSizeByteArray, false, t.Len(), nil
	default:
		return 0, false, 0, schemaMismatch(fmt.Sprintf("unsupported Go type %v; use a kind= tag override", t))
	}
}

// StaticBucket wraps a Bucket, marshaling Go values of type T through Item
// using a schema declared from T's struct tags.
type StaticBucket[T any] struct {
	bucket   *Bucket
	bindings []staticField
}

// OpenStaticBucket declares a schema from T's zero value and opens a Bucket
// for it at recordPath/stringPath.
func OpenStaticBucket[T any](recordPath, stringPath string, cfg Config) (*StaticBucket[T], error) {
	var zero T
	schema, bindings, err := declareSchemaFields(zero)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(schema, recordPath, stringPath, cfg)
	if err != nil {
		return nil, err
	}
	return &StaticBucket[T]{bucket: bucket, bindings: bindings}, nil
}

func (sb *StaticBucket[T]) toItem(v T) (Item, error) {
	rv := reflect.ValueOf(v)
	item := make(Item, len(sb.bindings))
	for _, b := range sb.bindings {
		fv := rv.Field(b.structIndex)
		switch {
		case b.Kind == KindString && b.isStringPtr:
			item[b.Name] = fv.Interface()
		case b.Kind == KindString:
			s := fv.String()
			item[b.Name] = &s
		default:
			item[b.Name] = fv.Interface()
		}
	}
	return item, nil
}

func (sb *StaticBucket[T]) fromItem(item Item) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	for _, b := range sb.bindings {
		fv := rv.Field(b.structIndex)
		v := item[b.Name]
		switch {
		case b.Kind == KindString && b.isStringPtr:
			fv.Set(reflect.ValueOf(v))
		case b.Kind == KindString:
			if s, ok := v.(*string); ok && s != nil {
				fv.SetString(*s)
			}
		default:
			fv.Set(reflect.ValueOf(v))
		}
	}
	return out, nil
}

// Schema returns the schema declared from T.
func (sb *StaticBucket[T]) Schema() Schema {
	return sb.bucket.Schema()
}

// Count returns the number of items currently visible.
func (sb *StaticBucket[T]) Count() int64 {
	return sb.bucket.Count()
}

// Append validates and writes values as a single contiguous run.
func (sb *StaticBucket[T]) Append(values []T) (int64, error) {
	items := make([]Item, len(values))
	for i, v := range values {
		item, err := sb.toItem(v)
		if err != nil {
			return 0, err
		}
		items[i] = item
	}
	return sb.bucket.Append(items)
}

// Read returns the single value at index i.
func (sb *StaticBucket[T]) Read(i int64) (T, error) {
	var zero T
	item, err := sb.bucket.Read(i)
	if err != nil {
		return zero, err
	}
	return sb.fromItem(item)
}

// ReadBulk returns take consecutive values starting at from.
func (sb *StaticBucket[T]) ReadBulk(from, take int64) ([]T, error) {
	items, err := sb.bucket.ReadBulk(from, take)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	for i, item := range items {
		v, err := sb.fromItem(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Statistics reports the underlying bucket's statistics.
func (sb *StaticBucket[T]) Statistics() BucketStats {
	return sb.bucket.Statistics()
}

// Sync flushes the underlying bucket.
func (sb *StaticBucket[T]) Sync() error {
	return sb.bucket.Sync()
}

// Delete tears down the underlying bucket.
func (sb *StaticBucket[T]) Delete() error {
	return sb.bucket.Delete()
}

// Close releases the underlying bucket's resources without deleting data.
func (sb *StaticBucket[T]) Close() error {
	return sb.bucket.Close()
}
