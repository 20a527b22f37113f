package utils

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Sha256SumFile computes the SHA-256 checksum for a given file path.
// It returns the checksum as a hex-encoded string.
func Sha256SumFile(path string) (string, error) {
	return sumFile(path, sha256.New())
}

// Sha1SumFile is the digest Box reports in a file's sha1 field.
func Sha1SumFile(path string) (string, error) {
	return sumFile(path, sha1.New())
}

func sumFile(path string, h hash.Hash) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func Sha256SumVerify(path string, checksum string) error {
	targetHash, hashErr := Sha256SumFile(path)
	if hashErr != nil {
		return hashErr
	}

	if checksum != targetHash {
		return errors.New("invalid checksum")
	}
	return nil
}

// ChecksumVerify picks SHA-1 or SHA-256 from the hex length of checksum.
func ChecksumVerify(path string, checksum string) error {
	checksum = strings.ToLower(strings.TrimSpace(checksum))
	switch len(checksum) {
	case sha1.Size * 2:
		sum, err := Sha1SumFile(path)
		if err != nil {
			return err
		}
		if sum != checksum {
			return errors.New("invalid checksum")
		}
		return nil
	case sha256.Size * 2:
		return Sha256SumVerify(path, checksum)
	default:
		return fmt.Errorf("unsupported checksum length %d", len(checksum))
	}
}
