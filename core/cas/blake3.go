package cas

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/msakit/core/errors"
)

// HashResult contains both SHA-256 and BLAKE3 hashes for a stored blob.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// blake3Pointer is the content of a BLAKE3 pointer file.
type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// PutWithBlake3 stores data and records a pointer from its BLAKE3 hash to
// its SHA-256 hash.
func (s *Store) PutWithBlake3(data []byte) (*HashResult, error) {
	sha256Hash, err := s.Put(data)
	if err != nil {
		return nil, err
	}

	blake3Hash := Blake3Hash(data)
	if err := s.createBlake3Pointer(blake3Hash, sha256Hash); err != nil {
		return nil, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
	}

	return &HashResult{SHA256: sha256Hash, BLAKE3: blake3Hash}, nil
}

// createBlake3Pointer writes <root>/blobs/blake3/<first2>/<blake3>.json.
func (s *Store) createBlake3Pointer(blake3Hash, sha256Hash string) error {
	pointerPath := s.pointerPath(blake3Hash)
	if _, err := os.Stat(pointerPath); err == nil {
		return nil
	}

	data, err := json.Marshal(blake3Pointer{SHA256: sha256Hash})
	if err != nil {
		return fmt.Errorf("failed to marshal pointer: %w", err)
	}
	return writeAtomic(pointerPath, ".pointer-*", data)
}

func (s *Store) pointerPath(blake3Hash string) string {
	return filepath.Join(s.root, "blobs", "blake3", blake3Hash[:2], blake3Hash+".json")
}

// LookupBlake3 returns the SHA-256 hash recorded for a BLAKE3 hash.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if !isValidHash(blake3Hash) {
		return "", ErrInvalidHash
	}

	data, err := os.ReadFile(s.pointerPath(blake3Hash))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", errors.NewIO("read", s.pointerPath(blake3Hash), err)
	}

	var pointer blake3Pointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return pointer.SHA256, nil
}

// GetByBlake3 returns a blob by its BLAKE3 hash.
func (s *Store) GetByBlake3(blake3Hash string) ([]byte, error) {
	sha256Hash, err := s.LookupBlake3(blake3Hash)
	if err != nil {
		return nil, err
	}
	return s.Get(sha256Hash)
}

// Blake3Hash computes the BLAKE3 hash of data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
