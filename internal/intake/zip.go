package intake

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
)

type zipReader struct{}

func (zipReader) CanRead(name string) bool { return hasExt(name, ".zip") }

// Read decodes the first supported, non-archive entry of the zip.
func (zipReader) Read(name string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &insight.DataFormatError{Reason: fmt.Sprintf("%s is not a valid zip archive", name), Err: err}
	}
	for _, f := range zr.File {
		entry := f.Name
		if f.FileInfo().IsDir() || strings.HasPrefix(entry, "__MACOSX/") || strings.HasPrefix(path.Base(entry), ".") {
			continue
		}
		if hasExt(entry, ".zip") || !Supported(entry) {
			continue
		}
		if f.UncompressedSize64 > MaxUploadBytes {
			return "", &insight.DataFormatError{Reason: fmt.Sprintf("%s in %s is too large", entry, name)}
		}
		b, err := readEntry(f)
		if err != nil {
			return "", &insight.DataFormatError{Reason: fmt.Sprintf("cannot extract %s", entry), Err: err}
		}
		return Decode(path.Base(entry), b)
	}
	return "", &insight.DataFormatError{Reason: fmt.Sprintf("%s contains no CSV file", name)}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxUploadBytes+1))
}
