// Package keygen derives storage keys and content digests for uploaded files.
// Neither function depends on the object store in use.
package keygen

import (
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sha256 "github.com/minio/sha256-simd"
)

// maxExtLen caps the extension carried over from the original file name.
const maxExtLen = 16

var now = time.Now

// GenerateStorageKey returns a key of the form <unix-nanos>_<32 hex>[.ext].
// The random part is a version 4 UUID (122 bits from crypto/rand) with the
// dashes removed. Only the extension of originalFileName is kept, and only if
// it is plain ASCII alphanumerics; everything else in the name is dropped.
func GenerateStorageKey(originalFileName string) string {
	id := uuid.New()
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now().UnixNano(), 10))
	b.WriteByte('_')
	b.WriteString(hex.EncodeToString(id[:]))
	if ext := safeExt(originalFileName); ext != "" {
		b.WriteByte('.')
		b.WriteString(ext)
	}
	return b.String()
}

func safeExt(name string) string {
	// Uploaders on Windows send backslash paths; treat both separators alike.
	name = strings.ReplaceAll(name, `\`, "/")
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(name)), ".")
	if ext == "" || len(ext) > maxExtLen {
		return ""
	}
	for i := 0; i < len(ext); i++ {
		c := ext[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}

// ComputeDigest returns the hex encoded SHA-256 of content.
func ComputeDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
