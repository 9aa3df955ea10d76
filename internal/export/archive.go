package export

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
)

// Archiver creates in-memory archives.
type Archiver interface {
	NewArchive() (Archive, error)
}

// Archive collects named files. Errors wrapping ErrArchiveUnavailable abort
// the archive attempt as a whole.
type Archive interface {
	// Reserve claims room for n more raw bytes before they are added.
	// It is safe for concurrent use.
	Reserve(n int64) error
	Add(name string, data []byte) error
	Bytes() ([]byte, error)
}

// ZipArchiver builds deflate-compressed zip archives.
type ZipArchiver struct {
	enabled  bool
	maxBytes int64
}

// NewZipArchiver returns an Archiver. A disabled archiver always reports
// ErrArchiveUnavailable; maxBytes <= 0 means no size cap.
func NewZipArchiver(enabled bool, maxBytes int64) *ZipArchiver {
	return &ZipArchiver{enabled: enabled, maxBytes: maxBytes}
}

func (a *ZipArchiver) NewArchive() (Archive, error) {
	if !a.enabled {
		return nil, fmt.Errorf("%w: disabled", ErrArchiveUnavailable)
	}
	z := &zipArchive{maxBytes: a.maxBytes, names: make(map[string]bool)}
	z.zw = zip.NewWriter(&z.buf)
	return z, nil
}

type zipArchive struct {
	buf      bytes.Buffer
	zw       *zip.Writer
	names    map[string]bool
	maxBytes int64
	raw      int64
	closed   bool

	mu       sync.Mutex
	reserved int64
}

func (z *zipArchive) Reserve(n int64) error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.maxBytes > 0 && z.reserved+n > z.maxBytes {
		return fmt.Errorf("%w: exceeds %d bytes", ErrArchiveUnavailable, z.maxBytes)
	}
	z.reserved += n
	return nil
}

func (z *zipArchive) Add(name string, data []byte) error {
	if z.closed {
		return fmt.Errorf("%w: archive already closed", ErrArchiveUnavailable)
	}
	// Compression never grows data by much, so the raw total is a safe bound.
	if z.maxBytes > 0 && z.raw+int64(len(data)) > z.maxBytes {
		return fmt.Errorf("%w: exceeds %d bytes", ErrArchiveUnavailable, z.maxBytes)
	}

	w, err := z.zw.CreateHeader(&zip.FileHeader{
		Name:     z.uniqueName(name),
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveUnavailable, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrArchiveUnavailable, err)
	}
	z.raw += int64(len(data))
	return nil
}

func (z *zipArchive) Bytes() ([]byte, error) {
	if !z.closed {
		z.closed = true
		if err := z.zw.Close(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArchiveUnavailable, err)
		}
	}
	return z.buf.Bytes(), nil
}

// uniqueName returns name, or "name (n).ext" if name is taken.
func (z *zipArchive) uniqueName(name string) string {
	if !z.names[name] {
		z.names[name] = true
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !z.names[candidate] {
			z.names[candidate] = true
			return candidate
		}
	}
}

// entryName turns a user-supplied file name into a flat archive entry name.
func entryName(fileName, fallback string) string {
	name := strings.ReplaceAll(fileName, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return fallback
	}
	return name
}
