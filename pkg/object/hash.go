package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashHexLen is the length of a hex-encoded Hash.
const HashHexLen = sha256.Size * 2

// HashBytes computes the raw SHA-256 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-256 of the envelope "type len\0content",
// mirroring Git's object hashing but with SHA-256.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha256.New()
	h.Write(objectHeader(objType, int64(len(data))))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// IsHexPrefix reports whether s is a non-empty lowercase hex string no longer
// than a full hash.
func IsHexPrefix(s string) bool {
	if s == "" || len(s) > HashHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsFullHash reports whether s has the shape of a complete Hash.
func IsFullHash(s string) bool {
	return len(s) == HashHexLen && IsHexPrefix(s)
}

func objectHeader(objType ObjectType, size int64) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", objType, size))
}
