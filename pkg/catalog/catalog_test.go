package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relicsec/beamdis/internal/types"
)

func openTestCatalog(t *testing.T) *BoltCatalog {
	t.Helper()
	dir, err := os.MkdirTemp("", "catalog_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cat, err := Open(DefaultConfig(filepath.Join(dir, "catalog.db")))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func testRecord(name string) *Record {
	return &Record{
		Name:         name,
		Source:       "ebin/" + name + ".beam",
		Fingerprint:  types.FingerprintOf([]byte(name)),
		Exports:      []string{"start/0", "stop/1"},
		Instructions: 42,
		Disassembly:  "; Module: " + name + "\n",
	}
}

func TestCatalogPutGet(t *testing.T) {
	cat := openTestCatalog(t)

	record := testRecord("m")
	if err := cat.Put(record); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if record.DecodedAt.IsZero() {
		t.Error("DecodedAt not stamped")
	}

	got, err := cat.Get("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "m" || got.Source != "ebin/m.beam" || got.Instructions != 42 {
		t.Errorf("record: %+v", got)
	}
	if !got.Fingerprint.Equals(record.Fingerprint) {
		t.Error("fingerprint not preserved")
	}
	if len(got.Exports) != 2 || got.Exports[0] != "start/0" {
		t.Errorf("exports: %v", got.Exports)
	}
}

func TestCatalogGetByFingerprint(t *testing.T) {
	cat := openTestCatalog(t)

	record := testRecord("m")
	if err := cat.Put(record); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := cat.GetByFingerprint(record.Fingerprint)
	if err != nil {
		t.Fatalf("get by fingerprint failed: %v", err)
	}
	if got.Name != "m" {
		t.Errorf("record: %+v", got)
	}

	var other types.Fingerprint
	if _, err := cat.GetByFingerprint(other); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("unknown fingerprint: got error %v, want ErrModuleNotFound", err)
	}
}

func TestCatalogReplace(t *testing.T) {
	cat := openTestCatalog(t)

	first := testRecord("m")
	if err := cat.Put(first); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	second := testRecord("m")
	second.Fingerprint = types.FingerprintOf([]byte("rebuilt"))
	second.Instructions = 99
	if err := cat.Put(second); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, err := cat.Get("m")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Instructions != 99 {
		t.Errorf("record not replaced: %+v", got)
	}

	// The old fingerprint index entry must be gone.
	if _, err := cat.GetByFingerprint(first.Fingerprint); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("stale fingerprint: got error %v, want ErrModuleNotFound", err)
	}
	if _, err := cat.GetByFingerprint(second.Fingerprint); err != nil {
		t.Errorf("new fingerprint: %v", err)
	}
}

func TestCatalogMissing(t *testing.T) {
	cat := openTestCatalog(t)

	if _, err := cat.Get("nope"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("got error %v, want ErrModuleNotFound", err)
	}
	if cat.Has("nope") {
		t.Error("Has reported a missing module")
	}
}

func TestCatalogEmptyName(t *testing.T) {
	cat := openTestCatalog(t)

	if err := cat.Put(&Record{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("got error %v, want ErrEmptyName", err)
	}
}

func TestCatalogDelete(t *testing.T) {
	cat := openTestCatalog(t)

	record := testRecord("m")
	if err := cat.Put(record); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := cat.Delete("m"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if cat.Has("m") {
		t.Error("record still present after delete")
	}
	if _, err := cat.GetByFingerprint(record.Fingerprint); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("fingerprint index survived delete: %v", err)
	}

	// A second delete is a no-op.
	if err := cat.Delete("m"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestCatalogListAndCount(t *testing.T) {
	cat := openTestCatalog(t)

	for _, name := range []string{"c", "a", "b"} {
		if err := cat.Put(testRecord(name)); err != nil {
			t.Fatalf("put %s failed: %v", name, err)
		}
	}

	names, err := cat.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("names: got %v, want [a b c]", names)
	}

	count, err := cat.Count()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count: got %d, want 3", count)
	}
}

func TestCatalogPersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "catalog_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "catalog.db")

	cat, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	record := testRecord("m")
	record.DecodedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := cat.Put(record); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := cat.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get("m")
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if !got.DecodedAt.Equal(record.DecodedAt) {
		t.Errorf("timestamp: got %v, want %v", got.DecodedAt, record.DecodedAt)
	}
}

func TestCatalogClosed(t *testing.T) {
	cat := openTestCatalog(t)
	if err := cat.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := cat.Put(testRecord("m")); !errors.Is(err, ErrClosed) {
		t.Errorf("put: got error %v, want ErrClosed", err)
	}
	if _, err := cat.Get("m"); !errors.Is(err, ErrClosed) {
		t.Errorf("get: got error %v, want ErrClosed", err)
	}
	if _, err := cat.List(); !errors.Is(err, ErrClosed) {
		t.Errorf("list: got error %v, want ErrClosed", err)
	}
	if cat.Has("m") {
		t.Error("Has on a closed catalog")
	}
	if err := cat.Close(); err != nil {
		t.Errorf("double close: %v", err)
	}
}
