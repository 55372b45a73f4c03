package hifi

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/unix"
)

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	typeID, ok := HashTypeFromName(strings.TrimSpace(name))
	if !ok {
		return nil, &ConfigError{Key: "filehash.default", Err: fmt.Errorf("unsupported hash algorithm: %q", name)}
	}
	return GetHashAlgorithmByType(typeID)
}

// GetHashAlgorithmByType returns the hash algorithm configuration for the given type ID
func GetHashAlgorithmByType(typeID uint16) (*HashAlgorithm, error) {
	switch typeID {
	case HashTypeMD5:
		return &HashAlgorithm{Name: "md5", TypeID: HashTypeMD5, Size: HashSizeMD5, NewFunc: md5.New}, nil
	case HashTypeSHA1:
		return &HashAlgorithm{Name: "sha1", TypeID: HashTypeSHA1, Size: HashSizeSHA1, NewFunc: sha1.New}, nil
	case HashTypeSHA256:
		return &HashAlgorithm{Name: "sha256", TypeID: HashTypeSHA256, Size: HashSizeSHA256, NewFunc: sha256.New}, nil
	case HashTypeSHA512:
		return &HashAlgorithm{Name: "sha512", TypeID: HashTypeSHA512, Size: HashSizeSHA512, NewFunc: sha512.New}, nil
	case HashTypeXXH64:
		return &HashAlgorithm{
			Name:    "xxh64",
			TypeID:  HashTypeXXH64,
			Size:    HashSizeXXH64,
			NewFunc: func() hash.Hash { return xxhash.New() },
		}, nil
	default:
		return nil, &ConfigError{Key: "filehash.default", Err: fmt.Errorf("unsupported hash type ID: %d", typeID)}
	}
}

// HashProvider computes content digests of files
type HashProvider interface {
	Hash(path string) (string, error)
	Algorithm() *HashAlgorithm
}

// FileHasher hashes files with a fixed algorithm and read buffer size
type FileHasher struct {
	algorithm  *HashAlgorithm
	bufferSize int
}

// NewFileHasher creates a hasher for algorithm reading bufferSize bytes at a time
func NewFileHasher(algorithm *HashAlgorithm, bufferSize int) (*FileHasher, error) {
	if algorithm == nil {
		return nil, &ConfigError{Key: "filehash.default", Err: fmt.Errorf("no hash algorithm")}
	}
	if bufferSize <= 0 {
		return nil, &ConfigError{Key: "performance.hash_buffer", Err: fmt.Errorf("buffer size must be positive, got %d", bufferSize)}
	}
	return &FileHasher{algorithm: algorithm, bufferSize: bufferSize}, nil
}

// Algorithm returns the hasher's algorithm
func (h *FileHasher) Algorithm() *HashAlgorithm {
	return h.algorithm
}

// Hash returns the hex digest of the file at path. Open and read failures are
// returned as *IOReadError.
func (h *FileHasher) Hash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &IOReadError{Path: path, Err: err}
	}
	defer file.Close()

	// Advisory only, a failure here does not affect the digest
	if err := unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL); err != nil && IsDebugEnabled("hash") {
		VerboseLog(3, "fadvise %s: %v", path, err)
	}

	hasher := h.algorithm.NewFunc()
	buffer := make([]byte, h.bufferSize)
	if _, err := io.CopyBuffer(struct{ io.Writer }{hasher}, struct{ io.Reader }{file}, buffer); err != nil {
		return "", &IOReadError{Path: path, Err: err}
	}

	if IsDebugEnabled("hash") {
		VerboseLog(3, "hashed %s with %s", path, h.algorithm.Name)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
