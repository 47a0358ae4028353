// Package intake turns an uploaded file into the CSV text the profiler reads.
package intake

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

// MaxUploadBytes caps the size of an uploaded file or archive entry.
const MaxUploadBytes = 64 << 20

// Reader converts one file format into CSV text.
type Reader interface {
	CanRead(name string) bool
	Read(name string, data []byte) (string, error)
}

var registry []Reader

// Register adds a reader. Readers are tried in registration order.
func Register(r Reader) {
	registry = append(registry, r)
}

// ReadFile reads path from disk and decodes it by extension.
func ReadFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &insight.DataFormatError{Reason: "cannot open file", Err: err}
	}
	if info.Size() > MaxUploadBytes {
		return "", &insight.DataFormatError{Reason: fmt.Sprintf("file is larger than %d MiB", MaxUploadBytes>>20)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &insight.DataFormatError{Reason: "cannot read file", Err: err}
	}
	return Decode(filepath.Base(path), data)
}

// Decode picks a reader for name and returns the CSV text.
func Decode(name string, data []byte) (string, error) {
	for _, r := range registry {
		if r.CanRead(name) {
			return r.Read(name, data)
		}
	}
	return "", &insight.DataFormatError{Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(name))}
}

// Supported reports whether some reader accepts name.
func Supported(name string) bool {
	for _, r := range registry {
		if r.CanRead(name) {
			return true
		}
	}
	return false
}

func hasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvReader struct{}

func (csvReader) CanRead(name string) bool { return hasExt(name, ".csv", ".txt") }

func (csvReader) Read(_ string, data []byte) (string, error) {
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// tsvReader swaps tabs for commas; cells that contain commas will split.
type tsvReader struct{}

func (tsvReader) CanRead(name string) bool { return hasExt(name, ".tsv") }

func (tsvReader) Read(_ string, data []byte) (string, error) {
	return strings.ReplaceAll(string(bytes.TrimPrefix(data, utf8BOM)), "\t", ","), nil
}

func init() {
	Register(csvReader{})
	Register(tsvReader{})
	Register(xlsxReader{})
	Register(zipReader{})
}
