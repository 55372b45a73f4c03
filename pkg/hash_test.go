package hifi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestFileHasher_KnownDigests(t *testing.T) {
	dir := realTempDir(t)
	path := filepath.Join(dir, "hello.txt")
	writeFile(t, path, "hello")

	testCases := []struct {
		algorithm string
		expected  string
	}{
		{"md5", "5d41402abc4b2a76b9719d911017c592"},
		{"sha1", "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"xxh64", fmt.Sprintf("%016x", xxhash.Sum64String("hello"))},
	}

	for _, tc := range testCases {
		t.Run(tc.algorithm, func(t *testing.T) {
			alg, err := GetHashAlgorithm(tc.algorithm)
			if err != nil {
				t.Fatalf("GetHashAlgorithm failed: %v", err)
			}
			hasher, err := NewFileHasher(alg, 1024)
			if err != nil {
				t.Fatalf("NewFileHasher failed: %v", err)
			}

			digest, err := hasher.Hash(path)
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			if digest != tc.expected {
				t.Errorf("Expected %s digest %s, got %s", tc.algorithm, tc.expected, digest)
			}
			if len(digest) != alg.Size*2 {
				t.Errorf("Expected %d hex characters, got %d", alg.Size*2, len(digest))
			}
		})
	}
}

func TestFileHasher_BufferSizeDoesNotChangeDigest(t *testing.T) {
	dir := realTempDir(t)
	path := filepath.Join(dir, "big.bin")
	writeFile(t, path, strings.Repeat("0123456789abcdef", 10000))

	alg, _ := GetHashAlgorithm("sha256")
	var digests []string
	for _, size := range []int{1, 7, 4096, 2 << 20} {
		hasher, err := NewFileHasher(alg, size)
		if err != nil {
			t.Fatalf("NewFileHasher(%d) failed: %v", size, err)
		}
		digest, err := hasher.Hash(path)
		if err != nil {
			t.Fatalf("Hash with buffer %d failed: %v", size, err)
		}
		digests = append(digests, digest)
	}

	for i := 1; i < len(digests); i++ {
		if digests[i] != digests[0] {
			t.Errorf("Digest %d differs: %s vs %s", i, digests[i], digests[0])
		}
	}
}

func TestFileHasher_MissingFile(t *testing.T) {
	alg, _ := GetHashAlgorithm("md5")
	hasher, _ := NewFileHasher(alg, 1024)

	_, err := hasher.Hash(filepath.Join(realTempDir(t), "missing"))
	var readErr *IOReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("Expected IOReadError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected IOReadError to wrap ErrNotExist, got %v", err)
	}
}

func TestNewFileHasher_InvalidArguments(t *testing.T) {
	alg, _ := GetHashAlgorithm("md5")

	var cfgErr *ConfigError
	if _, err := NewFileHasher(alg, 0); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for zero buffer, got %v", err)
	}
	if _, err := NewFileHasher(nil, 1024); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for nil algorithm, got %v", err)
	}
}

func TestGetHashAlgorithm(t *testing.T) {
	testCases := []struct {
		name   string
		typeID uint16
		valid  bool
	}{
		{"md5", HashTypeMD5, true},
		{"MD5", HashTypeMD5, true},
		{"sha1", HashTypeSHA1, true},
		{"sha256", HashTypeSHA256, true},
		{"sha512", HashTypeSHA512, true},
		{"xxh64", HashTypeXXH64, true},
		{"xxhash", HashTypeXXH64, true},
		{"crc32", 0, false},
		{"", 0, false},
	}

	for _, tc := range testCases {
		alg, err := GetHashAlgorithm(tc.name)
		if !tc.valid {
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("GetHashAlgorithm(%q): expected ConfigError, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("GetHashAlgorithm(%q) failed: %v", tc.name, err)
			continue
		}
		if alg.TypeID != tc.typeID {
			t.Errorf("GetHashAlgorithm(%q): expected type %d, got %d", tc.name, tc.typeID, alg.TypeID)
		}
		if HashTypeName(alg.TypeID) != alg.Name {
			t.Errorf("HashTypeName(%d) = %s, algorithm name %s", alg.TypeID, HashTypeName(alg.TypeID), alg.Name)
		}
	}
}
