package keytmpl

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// inputDomainKey is the BLAKE3 key used for cache input digests. Domain
// separation keeps these digests from colliding with any other hash the
// orchestrator might compute over the same bytes. The bytes are the ASCII
// encoding of the domain name, zero-padded to 32 bytes, so the key stays
// readable in a debugger. Changing it invalidates every existing cache key.
var inputDomainKey = [32]byte{
	'g', 'r', 'i', 'd', 'c', 'i', '.', 'c', 'a', 'c', 'h', 'e', '.',
	'i', 'n', 'p', 'u', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashFiles digests the contents of the named files (relative paths are
// resolved against baseDir) into a short hex string suitable for embedding
// in a cache key. File order matters: the digest covers each path name and
// its contents in the order given.
func hashFiles(baseDir string, paths []string) (string, error) {
	hasher, err := blake3.NewKeyed(inputDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("initializing input hasher: %w", err)
	}
	for _, p := range paths {
		resolved := p
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("hashing cache input: %w", err)
		}
		hasher.Write([]byte(p))
		hasher.Write([]byte{0})
		hasher.Write(data)
		hasher.Write([]byte{0})
	}
	sum := hasher.Sum(nil)
	// 16 bytes of a keyed BLAKE3 digest is plenty for cache addressing and
	// keeps rendered keys readable in logs.
	return hex.EncodeToString(sum[:16]), nil
}
