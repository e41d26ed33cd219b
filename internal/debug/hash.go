package debug

import (
	"hash/fnv"
	"path/filepath"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FileHash identifies an open file independently of path spelling.
type FileHash uint64

// String returns the hash in hexadecimal.
func (h FileHash) String() string {
	return strconv.FormatUint(uint64(h), 16)
}

// NormalizePath returns the cleaned, absolute, lowercased form of path.
// Relative paths are resolved against the working directory.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	// Casers keep internal state and must not be shared between goroutines.
	return cases.Lower(language.Und).String(abs)
}

// HashPath returns the FileHash of path.
func HashPath(path string) FileHash {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizePath(path)))
	return FileHash(h.Sum64())
}
