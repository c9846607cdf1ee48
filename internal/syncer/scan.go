package syncer

import (
	"crypto/sha256"
	"io"
	"os"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Scanner observes the filesystem state of one resource path. The checksum
// is empty unless the status is StatusFile.
type Scanner func(path string) (types.ResourceStatus, []byte, error)

// ScanFile is the default Scanner: Lstat for the status, SHA-256 of the
// content for regular files.
func ScanFile(path string) (types.ResourceStatus, []byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.StatusMissing, nil, nil
		}
		return types.StatusUnknown, nil, err
	}
	if info.IsDir() {
		return types.StatusDirectory, nil, nil
	}
	if !info.Mode().IsRegular() {
		return types.StatusUnknown, nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return types.StatusUnknown, nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return types.StatusUnknown, nil, err
	}
	return types.StatusFile, h.Sum(nil), nil
}

// FingerprintBytes hashes a byte slice the same way ScanFile hashes file
// content. Used for the description fingerprint.
func FingerprintBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
