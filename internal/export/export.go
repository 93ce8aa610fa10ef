// Package export renders the finished explanation tree for output consumers:
// a JSON repository map and a markdown guided tour, plus optional artifact
// upload to S3-compatible object storage.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"

	t "repopilot/internal/types"
)

// WriteJSON writes the explanation tree as indented JSON via a temp file and
// rename, so readers never observe a partial export.
func WriteJSON(tree *t.ExplanationTree, path string) error {
	raw, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, raw)
}

// WriteTour writes the markdown guided tour next to the JSON map.
func WriteTour(tree *t.ExplanationTree, path string) error {
	return writeAtomic(path, []byte(Tour(tree)))
}

func writeAtomic(path string, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
