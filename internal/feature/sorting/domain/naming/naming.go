// Package naming derives collision-resistant file names for uploads.
package naming

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"smartsort_backend/internal/feature/sorting/domain/entity"
)

const (
	// DefaultExtension is used when the upload name has no extension.
	DefaultExtension = ".jpg"
	// DefaultStem is used when the upload has no usable name.
	DefaultStem = "upload"
	// LabelExtension replaces the picture extension for label files.
	LabelExtension = ".txt"

	// MaxStemBytes caps the client stem so stored names stay well under the
	// 255-byte file name limit.
	MaxStemBytes = 100
	// MaxExtensionBytes is the longest extension kept from the upload name.
	MaxExtensionBytes = 16

	timestampLayout = "20060102150405"
)

// Generator builds ArtifactNames from an upload name, a timestamp and a
// 128-bit random token. No uniqueness check against existing files is made.
type Generator struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// NewGenerator returns a Generator using the wall clock and random UUIDs.
func NewGenerator() *Generator {
	return &Generator{now: time.Now, newID: uuid.New}
}

// NewGeneratorWith returns a Generator with injected clock and id source.
func NewGeneratorWith(now func() time.Time, newID func() uuid.UUID) *Generator {
	return &Generator{now: now, newID: newID}
}

// Generate returns "<yyyymmddhhmmss>_<hex>_<stem><ext>" and the same name
// with its extension replaced by ".txt".
func (g *Generator) Generate(originalName string) entity.ArtifactNames {
	stem, ext := split(originalName)
	id := g.newID()
	token := g.now().Format(timestampLayout) + "_" + hex.EncodeToString(id[:])

	picture := token + "_" + stem + ext
	return entity.ArtifactNames{
		Picture: picture,
		Label:   strings.TrimSuffix(picture, ext) + LabelExtension,
	}
}

// split returns the stem and extension of the base name, stripped of any
// directory components sent by the client.
func split(name string) (stem, ext string) {
	name = strings.ToValidUTF8(name, "_")
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		base = ""
	}

	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	if stem == "" {
		// ".jpg" and ".bashrc" have no stem; treat the whole thing as one.
		stem, ext = strings.TrimPrefix(ext, "."), ""
	}
	stem = truncate(strings.TrimSpace(stem), MaxStemBytes)
	if stem == "" {
		stem = DefaultStem
	}
	if ext == "" || ext == "." || len(ext) > MaxExtensionBytes {
		ext = DefaultExtension
	}
	return stem, ext
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
