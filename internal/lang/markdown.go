package lang

import (
	"context"
	"regexp"
)

var (
	reImgMD   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reImgHTML = regexp.MustCompile(`(?is)<img[^>]*>`)
)

// markdownAdapter claims markdown documents. They carry no type/function
// structure; the whole file is explained as one unit.
type markdownAdapter struct{}

func (markdownAdapter) Extensions() []string { return []string{".md", ".markdown"} }

func (markdownAdapter) Sniff(content []byte) bool { return false }

func (markdownAdapter) Parse(ctx context.Context, content []byte) (Result, error) {
	return Result{}, nil
}

// StripImages removes embedded image markup from markdown text so it does not
// bloat generation prompts or exports.
func StripImages(text string) string {
	text = reImgMD.ReplaceAllString(text, "")
	text = reImgHTML.ReplaceAllString(text, "")
	return text
}

// textAdapter claims common plain-text and config formats so they get a
// whole-file explanation instead of degrading to an opaque blob.
type textAdapter struct{}

func (textAdapter) Extensions() []string {
	return []string{".txt", ".rst", ".toml", ".yaml", ".yml", ".json", ".ini", ".cfg"}
}

func (textAdapter) Sniff(content []byte) bool { return false }

func (textAdapter) Parse(ctx context.Context, content []byte) (Result, error) {
	return Result{}, nil
}
