package scan

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SourceFile is one (path, content) pair of a repository snapshot.
// Paths are repo-relative with forward slashes.
type SourceFile struct {
	Path    string
	Content []byte
	// Truncated is set when the file exceeded MaxFileBytes and only a prefix
	// was kept. The cut is explicit, never silent.
	Truncated bool
	// Binary is set when the content looks non-textual.
	Binary bool
	Size   int64
}

// Options controls a snapshot walk.
type Options struct {
	// MaxFileBytes caps how much content is read per file; <=0 means 4 MiB.
	MaxFileBytes int
	// SkipDirs overrides the default VCS/dependency directory skip list.
	SkipDirs []string
}

var defaultSkipDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__",
	"venv", ".venv", "target", "build", "dist", ".next", ".cache",
}

const defaultMaxFileBytes = 4 << 20

// Snapshot walks root and returns its files in lexicographic path order.
// The ordering guarantees that repeated snapshots of identical content
// produce identical input for the structural model builder.
func Snapshot(root string, opts Options) ([]SourceFile, error) {
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	skip := opts.SkipDirs
	if skip == nil {
		skip = defaultSkipDirs
	}

	var files []SourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if path != root && (strings.HasPrefix(base, ".") || contains(skip, base)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, ".") {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)

		st, err := os.Stat(path)
		if err != nil {
			return nil
		}
		f := SourceFile{Path: rel, Size: st.Size()}

		raw, err := readPrefix(path, maxBytes)
		if err != nil {
			return nil
		}
		f.Content = raw
		f.Truncated = st.Size() > int64(len(raw))
		f.Binary = looksBinary(raw)
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir is already lexical per directory; re-sort on the full relative
	// path so the global order is independent of directory nesting.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func readPrefix(path string, limit int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 0, 64<<10)
	tmp := make([]byte, 64<<10)
	for len(buf) < limit {
		n, err := f.Read(tmp)
		if n > 0 {
			if len(buf)+n > limit {
				n = limit - len(buf)
			}
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// looksBinary applies the classic NUL-byte heuristic over the first 8 KiB.
func looksBinary(b []byte) bool {
	if len(b) > 8192 {
		b = b[:8192]
	}
	return bytes.IndexByte(b, 0) >= 0
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
