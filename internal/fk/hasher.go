package fk

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

// DefaultBlockSize is the read size used when streaming file content into a hash.
const DefaultBlockSize = 1024 * 1024

// HashAlgorithm names a content hash and how to build it.
type HashAlgorithm struct {
	Name    string
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the algorithm with the given name.
// Only algorithms of 160 bits or more are offered.
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return &HashAlgorithm{Name: "sha1", NewFunc: sha1.New}, nil
	case "sha256", "":
		return &HashAlgorithm{Name: "sha256", NewFunc: sha256.New}, nil
	case "sha512":
		return &HashAlgorithm{Name: "sha512", NewFunc: sha512.New}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// HashReader streams r into the algorithm in blockSize reads and returns the hex
// digest and the number of bytes read. progress, when non-nil, is called after
// every block with the running byte count.
func HashReader(r io.Reader, algorithm *HashAlgorithm, blockSize int, progress func(read int64)) (string, int64, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	h := algorithm.NewFunc()
	buf := make([]byte, blockSize)

	var read int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			read += int64(n)
			if progress != nil {
				progress(read)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", read, fmt.Errorf("reading content: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), read, nil
}
