// Package fileid provides a deterministic document ID from a file's name and
// contents. Re-uploading the same file (or the inbox watcher firing twice for
// one drop) yields the same ID, so stored files can be deduplicated.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
)

const prefix = "doc:"

// ContentID returns a stable document ID for a file. Same name and bytes
// always yield the same ID; renaming a file gives it a new identity.
func ContentID(name string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(content)
	return prefix + hex.EncodeToString(h.Sum(nil))
}
