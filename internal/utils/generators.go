package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// StoredFileName builds the on-disk name for an uploaded document: a 16-byte
// crypto-random hex prefix joined to a sanitized original name. The random
// prefix makes names unguessable and collision-resistant.
func StoredFileName(originalName string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random name generation failed: %w", err)
	}
	return hex.EncodeToString(buf) + "-" + SanitizeFileName(originalName), nil
}

// SanitizeFileName strips path components and replaces characters that are
// unsafe in file names. Never returns an empty string.
func SanitizeFileName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

// GenerateReceiptID returns a timestamped receipt reference.
func GenerateReceiptID(orderID string) string {
	short := orderID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("rcpt_%d_%s", time.Now().Unix(), short)
}
