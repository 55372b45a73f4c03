package hifi

import "strings"

// Context constants for sorted index operations
const (
	InsideContext  = "inside"
	OutsideContext = "outside"
	SideAContext   = "a"
	SideBContext   = "b"
)

// File constants
const (
	ConfigDirName  = "hifi"
	ConfigFileName = "config"
	DatabaseName   = "hifi.db"
	IgnoreFileName = "ignore"
	MemoryLocation = ":memory:"
)

// Store configuration keys
const (
	ConfigKeyHashMethod = "HASHMETHOD"
)

// Hash type constants
const (
	HashTypeMD5    uint16 = 1 // MD5 (16 bytes)
	HashTypeSHA1   uint16 = 2 // SHA-1 (20 bytes)
	HashTypeSHA256 uint16 = 3 // SHA-256 (32 bytes)
	HashTypeSHA512 uint16 = 4 // SHA-512 (64 bytes)
	HashTypeXXH64  uint16 = 5 // xxHash64 (8 bytes, non-cryptographic)
)

// Hash size constants
const (
	HashSizeMD5    = 16
	HashSizeSHA1   = 20
	HashSizeSHA256 = 32
	HashSizeSHA512 = 64
	HashSizeXXH64  = 8
)

// DefaultHashMethod is the algorithm recorded in newly created stores
const DefaultHashMethod = "md5"

// Defaults for the performance section
const (
	DefaultHashWorkers = 4
	DefaultHashBuffer  = "2M"
	MaxHashWorkers     = 64
)

// HashTypeName returns the human-readable name for a hash type
func HashTypeName(hashType uint16) string {
	switch hashType {
	case HashTypeMD5:
		return "md5"
	case HashTypeSHA1:
		return "sha1"
	case HashTypeSHA256:
		return "sha256"
	case HashTypeSHA512:
		return "sha512"
	case HashTypeXXH64:
		return "xxh64"
	default:
		return "unknown"
	}
}

// HashTypeFromName returns the hash type constant from a name (case-insensitive)
func HashTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "md5":
		return HashTypeMD5, true
	case "sha1":
		return HashTypeSHA1, true
	case "sha256":
		return HashTypeSHA256, true
	case "sha512":
		return HashTypeSHA512, true
	case "xxh64", "xxhash":
		return HashTypeXXH64, true
	default:
		return 0, false
	}
}
