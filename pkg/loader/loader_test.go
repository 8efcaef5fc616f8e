package loader

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// testModule builds a well-formed single-function module with the given
// name atom.
func testModule(name string) []byte {
	return testModuleWithCode(name, []byte{1, 0x10, 19}) // label 1, return
}

// testModuleWithCode builds a module around an arbitrary instruction
// stream.
func testModuleWithCode(name string, instrs []byte) []byte {
	be32 := func(v uint32) []byte {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		return b[:]
	}
	chunk := func(id string, payload []byte) []byte {
		out := append([]byte(id), be32(uint32(len(payload)))...)
		out = append(out, payload...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		return out
	}

	atoms := be32(1)
	atoms = append(atoms, byte(len(name)))
	atoms = append(atoms, name...)

	code := be32(16)
	code = append(code, be32(0)...)
	code = append(code, be32(182)...)
	code = append(code, be32(1)...)
	code = append(code, be32(0)...)
	code = append(code, instrs...)

	empty := be32(0)

	var body []byte
	body = append(body, chunk("AtU8", atoms)...)
	body = append(body, chunk("Code", code)...)
	body = append(body, chunk("ImpT", empty)...)
	body = append(body, chunk("ExpT", empty)...)

	out := append([]byte("FOR1"), be32(uint32(len(body)+4))...)
	out = append(out, []byte("BEAM")...)
	return append(out, body...)
}

func TestReadFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "loader_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "m.beam")
	data := testModule("m")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if src.Name != path || !bytes.Equal(src.Data, data) {
		t.Errorf("got name=%q len=%d", src.Name, len(src.Data))
	}
}

func TestReadFileGzipped(t *testing.T) {
	dir, err := os.MkdirTemp("", "loader_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	data := testModule("gz")
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("compress: %v", err)
	}

	path := filepath.Join(dir, "gz.beam")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(src.Data, data) {
		t.Error("gzip wrapper not removed")
	}
}

func TestReadArchive(t *testing.T) {
	dir, err := os.MkdirTemp("", "loader_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "app.ez")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, member := range []struct {
		name string
		data []byte
	}{
		{"app/ebin/a.beam", testModule("a")},
		{"app/ebin/b.beam", testModule("b")},
		{"app/ebin/app.app", []byte("{application, app, []}.")},
	} {
		w, err := zw.Create(member.name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(member.data); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sources, problems, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("ReadArchive failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("unexpected problems: %v", problems)
	}
	if len(sources) != 2 {
		t.Fatalf("sources: got %d, want 2 (the .app file is not a module)", len(sources))
	}
	if sources[0].Name != path+"!app/ebin/a.beam" {
		t.Errorf("source name: got %q", sources[0].Name)
	}
}

func TestScan(t *testing.T) {
	dir, err := os.MkdirTemp("", "loader_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	sub := filepath.Join(dir, "ebin")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "x.beam"), testModule("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sources, problems, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("unexpected problems: %v", problems)
	}
	if len(sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(sources))
	}
}
