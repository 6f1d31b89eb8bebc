// Package fileid derives stable identifiers for ingested files and their chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const prefix = "file:"

// DocumentID returns the document ID for a file path. The path is cleaned first, so
// re-ingesting the same file always targets the same document.
func DocumentID(absolutePath string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return prefix + hex.EncodeToString(hash[:16])
}

// ChunkID names the index-th chunk of an instruction.
func ChunkID(instructionID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", instructionID, index)
}
