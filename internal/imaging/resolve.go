// Package imaging – stored-value resolution.
//
// Historically image columns accumulated several representation styles: raw
// blobs, bare base64, full data URIs, filesystem paths, and remote URLs.
// Resolve classifies a value exactly once, at ingestion, into a tagged
// Source; Embed turns a stored (kind, value) pair back into something a
// client can render directly.
package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/palettehub/commission-backend/internal/domain"
)

// bareBase64RE matches strings consisting solely of the base64 alphabet
// (whitespace tolerated). Combined with minBareBase64Len it is the heuristic
// for "this text column actually holds an encoded image".
var bareBase64RE = regexp.MustCompile(`^[A-Za-z0-9+/=\s]+$`)

// minBareBase64Len guards the heuristic against short plain-text values that
// happen to fit the base64 alphabet ("hello", numeric ids, and the like).
const minBareBase64Len = 64

// Source is an image value classified at ingestion time.
//
// Exactly one of Bytes / Ref is meaningful depending on Kind:
//   - ImageBinary, ImageDataURI: Bytes holds the stored payload (for a data
//     URI this is the URI text itself, kept verbatim).
//   - ImageFilePath, ImageRemoteURL: Ref holds the path or URL.
type Source struct {
	Kind  domain.ImageSourceKind
	Bytes []byte
	Ref   string
}

// Value returns the byte payload to persist for this source.
func (s Source) Value() []byte {
	if len(s.Bytes) > 0 {
		return s.Bytes
	}
	return []byte(s.Ref)
}

// Resolve classifies a raw stored value. Interpretations are tried in order:
// already-data-URI, bare base64, filesystem path under one of roots, http(s)
// URL, and finally raw binary.
func Resolve(value []byte, roots []string) Source {
	if len(value) == 0 {
		return Source{Kind: domain.ImageBinary}
	}

	// Textual interpretations only make sense for valid UTF-8.
	if utf8.Valid(value) {
		s := strings.TrimSpace(string(value))
		switch {
		case IsDataURI(s):
			return Source{Kind: domain.ImageDataURI, Bytes: []byte(s)}
		case len(s) >= minBareBase64Len && bareBase64RE.MatchString(s):
			return Source{Kind: domain.ImageDataURI, Bytes: []byte("data:image/png;base64," + strings.Map(dropSpace, s))}
		case findUnderRoots(s, roots) != "":
			return Source{Kind: domain.ImageFilePath, Ref: findUnderRoots(s, roots)}
		case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
			return Source{Kind: domain.ImageRemoteURL, Ref: s}
		}
	}
	return Source{Kind: domain.ImageBinary, Bytes: value}
}

// Embed converts a stored (kind, value) pair into an embeddable string:
// a data URI for binary and file-backed values, or the URL itself for
// remote references.
func Embed(kind domain.ImageSourceKind, value []byte, roots []string) (string, error) {
	switch kind {
	case domain.ImageDataURI, domain.ImageRemoteURL:
		return string(value), nil
	case domain.ImageFilePath:
		path := findUnderRoots(string(value), roots)
		if path == "" {
			return "", fmt.Errorf("image file %q not found under any configured root", string(value))
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read image file: %w", err)
		}
		return DataURI(raw, strings.TrimPrefix(filepath.Ext(path), ".")), nil
	case domain.ImageBinary:
		if len(value) == 0 {
			return "", nil
		}
		return DataURI(value, ""), nil
	default:
		return "", fmt.Errorf("unknown image source kind %q", kind)
	}
}

// findUnderRoots returns the first existing regular file for candidate,
// tried as-is and joined under each root. Absolute escapes out of the roots
// are rejected.
func findUnderRoots(candidate string, roots []string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.ContainsRune(candidate, '\x00') {
		return ""
	}
	var tries []string
	if filepath.IsAbs(candidate) {
		// An absolute candidate is honored only when it already lies under
		// one of the configured roots.
		abs := filepath.Clean(candidate)
		for _, root := range roots {
			if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
				tries = append(tries, abs)
				break
			}
		}
	}
	for _, root := range roots {
		joined := filepath.Join(root, candidate)
		// Joining must stay inside the root.
		if rel, err := filepath.Rel(root, joined); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		tries = append(tries, joined)
	}
	for _, p := range tries {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// dropSpace removes whitespace runes; used when repairing wrapped base64.
func dropSpace(r rune) rune {
	switch r {
	case ' ', '\n', '\r', '\t':
		return -1
	}
	return r
}
