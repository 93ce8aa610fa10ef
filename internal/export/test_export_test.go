package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	t "repopilot/internal/types"
)

func demoExplained() *t.ExplanationTree {
	return &t.ExplanationTree{
		Root: &t.ExplainedNode{
			ID: ".", Kind: t.KindRoot, Name: ".",
			Explanation: "Repository containing 2 entries.",
			RollUp:      true,
			Children: []*t.ExplainedNode{
				{
					ID: "pkg", Kind: t.KindDirectory, Name: "pkg",
					Explanation: "Directory pkg containing 1 entries.",
					RollUp:      true,
					Children: []*t.ExplainedNode{
						{
							ID: "pkg/a.py", Kind: t.KindFile, Name: "a.py",
							Language:    "python",
							Explanation: "Loads settings.\nMore detail here.",
						},
					},
				},
				{
					ID: "data.bin", Kind: t.KindBlob, Name: "data.bin",
					Marker: t.MarkerUnsupported,
				},
			},
		},
		Stats: t.Stats{
			TotalFiles:      2,
			TotalLines:      10,
			Generated:       1,
			Failed:          1,
			TopDependencies: []string{"requests"},
		},
		GeneratedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWriteJSON_RoundTrips(te *testing.T) {
	path := filepath.Join(te.TempDir(), "out", "repo_map.json")
	require.NoError(te, WriteJSON(demoExplained(), path))

	raw, err := os.ReadFile(path)
	require.NoError(te, err)
	var got t.ExplanationTree
	require.NoError(te, json.Unmarshal(raw, &got))
	require.Equal(te, "pkg", string(got.Root.Children[0].ID))
	require.Equal(te, 2, got.Stats.TotalFiles)

	// No leftover temp file from the atomic write.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(te, err)
	require.Len(te, entries, 1)
}

func TestTour_Content(te *testing.T) {
	out := Tour(demoExplained())

	require.Contains(te, out, "# Repository Tour")
	require.Contains(te, out, "**2 files** with **10 lines of code**")
	require.Contains(te, out, "- Unavailable: 1")
	require.Contains(te, out, "**pkg/**")
	require.Contains(te, out, "**a.py** — Loads settings.")
	require.NotContains(te, out, "More detail here", "structure listing uses first lines")
	require.Contains(te, out, "**data.bin** — explanation unavailable: unsupported-language")
	require.Contains(te, out, "## Dependencies")
	require.Contains(te, out, "- `requests`")
}

func TestWriteTour(te *testing.T) {
	path := filepath.Join(te.TempDir(), "repo_tour.md")
	require.NoError(te, WriteTour(demoExplained(), path))
	raw, err := os.ReadFile(path)
	require.NoError(te, err)
	require.Contains(te, string(raw), "# Repository Tour")
}
