// Package imaging converts stored image values into embeddable
// representations. It owns format sniffing (magic bytes), data-URI encoding
// and decoding, and the classification of polymorphic stored values into a
// tagged source kind. Everything here is pure and side-effect free except
// for the filesystem lookups in resolve.go.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// Magic prefixes for the three supported formats.
var (
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
	magicGIF  = []byte{0x47, 0x49, 0x46}
)

// SniffExt inspects the leading bytes of a payload and returns the image
// extension: "jpeg", "png", or "gif". Unknown payloads default to "png".
func SniffExt(b []byte) string {
	switch {
	case bytes.HasPrefix(b, magicJPEG):
		return "jpeg"
	case bytes.HasPrefix(b, magicPNG):
		return "png"
	case bytes.HasPrefix(b, magicGIF):
		return "gif"
	default:
		return "png"
	}
}

// MIMEForExt maps an extension hint to its MIME type. Unrecognized hints
// fall back to image/png.
func MIMEForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

// DataURI wraps raw bytes in a data:<mime>;base64 envelope. When hintExt is
// empty the MIME type is sniffed from the payload's magic bytes.
func DataURI(b []byte, hintExt string) string {
	if hintExt == "" {
		hintExt = SniffExt(b)
	}
	return "data:" + MIMEForExt(hintExt) + ";base64," + base64.StdEncoding.EncodeToString(b)
}

// IsDataURI reports whether s already carries a data: envelope.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURI splits a data URI into its decoded payload and MIME type.
// Both "data:<mime>;base64,<payload>" and the rarely seen unparameterized
// "data:,<payload>" form are rejected unless the payload is valid base64.
func DecodeDataURI(s string) ([]byte, string, error) {
	if !IsDataURI(s) {
		return nil, "", fmt.Errorf("not a data URI")
	}
	rest := s[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, "", fmt.Errorf("malformed data URI: missing payload separator")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("unsupported data URI encoding %q", meta)
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "image/png"
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URI payload: %w", err)
	}
	return raw, mime, nil
}

// ExtForMIME is the inverse of MIMEForExt, used when naming downloaded files.
func ExtForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
