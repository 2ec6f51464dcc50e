package recordstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testBucketConfig() Config {
	cfg := DefaultConfig()
	cfg.Cache.InitialFileSize = 4096
	cfg.Cache.PageSize = 4096
	cfg.Cache.MaxCachedPages = 8
	cfg.Cache.HotPrefix = 2
	return cfg
}

func openTestBucket(t *testing.T, schema Schema) *Bucket {
	t.Helper()
	dir := t.TempDir()
	b, err := OpenBucket(schema, filepath.Join(dir, "records.bin"), filepath.Join(dir, "strings.bin"), testBucketConfig())
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	return b
}

func strPtr(s string) *string { return &s }

// TestBucketAppendAndReadRoundTrip reproduces S1 at reduced scale: a schema
// mixing numeric and string fields, appended and read back unchanged.
func TestBucketAppendAndReadRoundTrip(t *testing.T) {
	schema, err := NewSchema(
		Field{Name: "ID", Kind: KindInt64},
		Field{Name: "Score", Kind: KindDouble},
		Field{Name: "Name", Kind: KindString},
	)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	b := openTestBucket(t, schema)

	items := []Item{
		{"ID": int64(1), "Score": 9.5, "Name": strPtr("alice")},
		{"ID": int64(2), "Score": 2.0, "Name": strPtr("")},
		{"ID": int64(3), "Score": 0.0, "Name": (*string)(nil)},
	}
	start, err := b.Append(items)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if start != 0 {
		t.Fatalf("Append returned start %d, want 0", start)
	}
	if b.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", b.Count())
	}

	got, err := b.ReadBulk(0, 3)
	if err != nil {
		t.Fatalf("ReadBulk: %v", err)
	}
	if got[0]["ID"].(int64) != 1 || *got[0]["Name"].(*string) != "alice" {
		t.Errorf("item 0 = %+v", got[0])
	}
	if *got[1]["Name"].(*string) != "" {
		t.Errorf("item 1 Name = %v, want empty string", got[1]["Name"])
	}
	if got[2]["Name"].(*string) != nil {
		t.Errorf("item 2 Name = %v, want nil", got[2]["Name"])
	}
}

func TestBucketReadOutOfRange(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b := openTestBucket(t, schema)

	if _, err := b.Append([]Item{{"ID": int32(1)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := b.Read(1); err == nil {
		t.Error("Read(1) on a 1-item bucket succeeded, want OutOfRange")
	}
	if _, err := b.ReadBulk(0, 2); err == nil {
		t.Error("ReadBulk(0,2) on a 1-item bucket succeeded, want OutOfRange")
	}
	if _, err := b.ReadBulk(-1, 1); err == nil {
		t.Error("ReadBulk(-1,1) succeeded, want OutOfRange")
	}
}

func TestBucketAppendRejectsSchemaMismatch(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b := openTestBucket(t, schema)

	if _, err := b.Append([]Item{{"ID": int64(1)}}); err == nil {
		t.Error("Append accepted an int64 value for an Int32 field, want error")
	}
}

func TestBucketReopenPreservesCount(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "records.bin")
	stringPath := filepath.Join(dir, "strings.bin")
	cfg := testBucketConfig()

	b, err := OpenBucket(schema, recordPath, stringPath, cfg)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	if _, err := b.Append([]Item{{"ID": int32(1)}, {"ID": int32(2)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenBucket(schema, recordPath, stringPath, cfg)
	if err != nil {
		t.Fatalf("reopen OpenBucket: %v", err)
	}
	if reopened.Count() != 2 {
		t.Errorf("reopened Count() = %d, want 2", reopened.Count())
	}
}

func TestBucketOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	recordPath := filepath.Join(dir, "records.bin")
	stringPath := filepath.Join(dir, "strings.bin")
	cfg := testBucketConfig()

	schemaA, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b, err := OpenBucket(schemaA, recordPath, stringPath, cfg)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	b.Close()

	schemaB, _ := NewSchema(Field{Name: "ID", Kind: KindInt64})
	if _, err := OpenBucket(schemaB, recordPath, stringPath, cfg); err == nil {
		t.Error("OpenBucket with a mismatched schema sidecar succeeded, want error")
	}
}

func TestBucketAsEnumerableYieldsAllItemsInOrder(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	cfg := testBucketConfig()
	cfg.AsEnumerablePageSize = 3 // force multiple pages over a small bucket
	dir := t.TempDir()
	b, err := OpenBucket(schema, filepath.Join(dir, "records.bin"), filepath.Join(dir, "strings.bin"), cfg)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}

	const n = 10
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		items[i] = Item{"ID": int32(i)}
	}
	if _, err := b.Append(items); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var got []int32
	for item, err := range b.AsEnumerable() {
		if err != nil {
			t.Fatalf("AsEnumerable: %v", err)
		}
		got = append(got, item["ID"].(int32))
	}
	if len(got) != n {
		t.Fatalf("AsEnumerable yielded %d items, want %d", len(got), n)
	}
	for i, v := range got {
		if v != int32(i) {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}
}

func TestBucketAsEnumerableStopsEarly(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	cfg := testBucketConfig()
	cfg.AsEnumerablePageSize = 2
	dir := t.TempDir()
	b, err := OpenBucket(schema, filepath.Join(dir, "records.bin"), filepath.Join(dir, "strings.bin"), cfg)
	if err != nil {
		t.Fatalf("OpenBucket: %v", err)
	}
	items := make([]Item, 10)
	for i := range items {
		items[i] = Item{"ID": int32(i)}
	}
	if _, err := b.Append(items); err != nil {
		t.Fatalf("Append: %v", err)
	}

	count := 0
	for range b.AsEnumerable() {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("early-break AsEnumerable ran %d iterations, want 3", count)
	}
}

// TestBucketAppendPoisonsOnWriteFailure reproduces spec §7's fatal-write
// policy: once a record-bytes write fails, the bucket must refuse every
// further write and read rather than leave a silent hole at the failed
// batch's reserved index.
func TestBucketAppendPoisonsOnWriteFailure(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b := openTestBucket(t, schema)

	if _, err := b.Append([]Item{{"ID": int32(1)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Force the next record-bytes write to fail by closing the backing file
	// out from under the cache.
	if err := b.records.file.Close(); err != nil {
		t.Fatalf("closing backing file: %v", err)
	}

	if _, err := b.Append([]Item{{"ID": int32(2)}}); err == nil {
		t.Fatal("Append after backing file closed succeeded, want error")
	} else if _, ok := err.(*BackgroundError); !ok {
		t.Errorf("Append error = %v (%T), want *BackgroundError", err, err)
	}

	if _, err := b.Append([]Item{{"ID": int32(3)}}); err == nil {
		t.Fatal("Append on an already-poisoned bucket succeeded, want error")
	} else if _, ok := err.(*BackgroundError); !ok {
		t.Errorf("Append on poisoned bucket = %v (%T), want *BackgroundError", err, err)
	}

	if _, err := b.ReadBulk(0, 1); err == nil {
		t.Fatal("ReadBulk on a poisoned bucket succeeded, want error")
	} else if _, ok := err.(*BackgroundError); !ok {
		t.Errorf("ReadBulk on poisoned bucket = %v (%T), want *BackgroundError", err, err)
	}
}

// TestBucketAppendUnblocksWaitersOnPoison reproduces the hole scenario
// directly: a batch reserved ahead of a failing one must not wait forever
// on a count that can no longer advance past the failure.
func TestBucketAppendUnblocksWaitersOnPoison(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b := openTestBucket(t, schema)

	// Simulate a batch that reserved index 0 and is about to fail its
	// record write, without yet publishing the failure.
	b.commitMu.Lock()
	b.reserved = 1
	b.commitMu.Unlock()

	// A second batch reserves index 1, lands behind the first in commit
	// order, and blocks in the commit wait loop.
	done := make(chan error, 1)
	go func() {
		_, err := b.Append([]Item{{"ID": int32(7)}})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)

	// The first batch's write fails now; poison the bucket the way Append's
	// commit section does after an unsuccessful records.Write.
	b.commitMu.Lock()
	b.poisoned = errors.New("simulated write failure")
	b.commitCnd.Broadcast()
	b.commitMu.Unlock()

	select {
	case err := <-done:
		if _, ok := err.(*BackgroundError); !ok {
			t.Errorf("blocked Append returned %v (%T), want *BackgroundError", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked forever waiting on a poisoned bucket")
	}
}

func TestBucketClosedRejectsOperations(t *testing.T) {
	schema, _ := NewSchema(Field{Name: "ID", Kind: KindInt32})
	b := openTestBucket(t, schema)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := b.Append([]Item{{"ID": int32(1)}}); err != ErrClosed {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
	if _, err := b.ReadBulk(0, 1); err != ErrClosed {
		t.Errorf("ReadBulk after Close = %v, want ErrClosed", err)
	}
}
