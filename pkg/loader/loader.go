// Package loader locates BEAM modules on disk - single files, .ez archives
// and directory trees - and drives batch decoding. The beam package itself
// never touches the filesystem; everything here is buffered before decode.
package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Source is one fully buffered module candidate.
type Source struct {
	// Name identifies the module input in reports: the file path, or
	// "archive.ez!member.beam" for archive members.
	Name string

	// Data is the raw module buffer, already gunzipped if the input was a
	// gzip-wrapped module.
	Data []byte
}

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// ReadFile buffers one .beam file. Gzip-wrapped modules (some build tools
// compress them) are transparently decompressed.
func ReadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read %s: %w", path, err)
	}
	data, err = maybeGunzip(data)
	if err != nil {
		return Source{}, fmt.Errorf("gunzip %s: %w", path, err)
	}
	return Source{Name: path, Data: data}, nil
}

// ReadArchive enumerates the .beam members of an .ez archive (a plain zip
// file). Members that fail to read are skipped with an entry in the
// returned problem list; one bad member never hides its siblings.
func ReadArchive(path string) ([]Source, []error, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer zr.Close()

	var sources []Source
	var problems []error
	for _, member := range zr.File {
		if member.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(member.Name), ".beam") {
			continue
		}
		name := path + "!" + member.Name
		rc, err := member.Open()
		if err != nil {
			problems = append(problems, fmt.Errorf("open %s: %w", name, err))
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			problems = append(problems, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		data, err = maybeGunzip(data)
		if err != nil {
			problems = append(problems, fmt.Errorf("gunzip %s: %w", name, err))
			continue
		}
		sources = append(sources, Source{Name: name, Data: data})
	}
	return sources, problems, nil
}

// Scan walks a directory tree collecting every .beam file and every .beam
// member of every .ez archive. Unreadable entries are reported in the
// problem list and skipped.
func Scan(root string) ([]Source, []error, error) {
	var sources []Source
	var problems []error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			problems = append(problems, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".beam":
			src, err := ReadFile(path)
			if err != nil {
				problems = append(problems, err)
				return nil
			}
			sources = append(sources, src)
		case ".ez":
			members, memberProblems, err := ReadArchive(path)
			if err != nil {
				problems = append(problems, err)
				return nil
			}
			problems = append(problems, memberProblems...)
			sources = append(sources, members...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return sources, problems, nil
}

// maybeGunzip decompresses a buffer when it starts with the gzip magic and
// returns it untouched otherwise.
func maybeGunzip(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
