package recordstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

type staticTestRecord struct {
	ID       int64
	Name     string
	Note     *string
	Active   bool
	Created  time.Time
	TraceID  uuid.UUID `recordstore:"TraceID"`
	Internal string    `recordstore:"-"`
}

func TestDeclareSchemaInfersKinds(t *testing.T) {
	schema, err := DeclareSchema(staticTestRecord{})
	if err != nil {
		t.Fatalf("DeclareSchema: %v", err)
	}

	want := map[string]Kind{
		"ID":      KindInt64,
		"Name":    KindString,
		"Note":    KindString,
		"Active":  KindBoolean,
		"Created": KindDateTime,
		"TraceID": KindGuid,
	}
	if len(schema.Fields) != len(want) {
		t.Fatalf("schema has %d fields, want %d (unexported/skipped fields must be excluded)", len(schema.Fields), len(want))
	}
	for _, f := range schema.Fields {
		k, ok := want[f.Name]
		if !ok {
			t.Errorf("unexpected field %q in declared schema", f.Name)
			continue
		}
		if f.Kind != k {
			t.Errorf("field %q kind = %v, want %v", f.Name, f.Kind, k)
		}
	}
}

func TestStaticBucketAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	sb, err := OpenStaticBucket[staticTestRecord](filepath.Join(dir, "records.bin"), filepath.Join(dir, "strings.bin"), testBucketConfig())
	if err != nil {
		t.Fatalf("OpenStaticBucket: %v", err)
	}

	note := "hello"
	rec := staticTestRecord{
		ID:      1,
		Name:    "alice",
		Note:    &note,
		Active:  true,
		Created: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		TraceID: uuid.New(),
	}
	if _, err := sb.Append([]staticTestRecord{rec}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := sb.Read(0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ID != rec.ID || got.Name != rec.Name || got.Active != rec.Active {
		t.Errorf("Read() = %+v, want %+v", got, rec)
	}
	if got.Note == nil || *got.Note != note {
		t.Errorf("Read().Note = %v, want %q", got.Note, note)
	}
	if got.TraceID != rec.TraceID {
		t.Errorf("Read().TraceID = %v, want %v", got.TraceID, rec.TraceID)
	}
}

func TestStaticBucketCloseRejectsFurtherOperations(t *testing.T) {
	dir := t.TempDir()
	sb, err := OpenStaticBucket[staticTestRecord](filepath.Join(dir, "records.bin"), filepath.Join(dir, "strings.bin"), testBucketConfig())
	if err != nil {
		t.Fatalf("OpenStaticBucket: %v", err)
	}
	if err := sb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sb.Append([]staticTestRecord{{}}); err != ErrClosed {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
}
