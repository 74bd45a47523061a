package storage

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hex computes the BLAKE3 hash of a byte slice as a 64-char
// hex string.
func ComputeBlake3Hex(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// computeFileBlake3Hex streams a file through BLAKE3 and returns the hex
// digest, without loading the file into memory.
func computeFileBlake3Hex(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// IsValidHash checks that a string is a well-formed 64-char lowercase hex
// BLAKE3 digest.
func IsValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
