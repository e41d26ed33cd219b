package debug

// OpenFile is one entry of the engine's open file table.
type OpenFile struct {
	// Hash is the file identity.
	Hash FileHash

	// Path is the path shown to clients.
	Path string

	// Lines is the source text, one element per line.
	Lines []string
}

// LineCount returns the number of lines in the file.
func (f OpenFile) LineCount() int {
	return len(f.Lines)
}

// Line returns the 1-based source line n.
func (f OpenFile) Line(n int) (string, bool) {
	if n < 1 || n > len(f.Lines) {
		return "", false
	}
	return f.Lines[n-1], true
}

// FileLookup resolves a FileHash to an open file.
type FileLookup interface {
	OpenFile(hash FileHash) (OpenFile, bool)
}
