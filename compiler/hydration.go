package compiler

import (
	"os"
	"path/filepath"
	"strings"
)

// fileCache is a request-scoped cache of file contents, avoiding
// re-reading the same document for every span it contributes. It is not
// safe across requests: a new one is created per compilation, matching
// §5's "no cross-request mutable state" rule.
type fileCache struct {
	root  string
	files map[string][]rune
}

func newFileCache(root string) *fileCache {
	return &fileCache{root: root, files: make(map[string][]rune)}
}

// read returns a file's contents as runes, so callers can slice
// [char_start, char_end) on character boundaries rather than bytes (§4.7).
func (fc *fileCache) read(relPath string) ([]rune, error) {
	if data, ok := fc.files[relPath]; ok {
		return data, nil
	}

	full := filepath.Join(fc.root, relPath)
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		resolved = full
	}
	// Guard against symlink escapes: the resolved path must still live
	// under root, checked both before and after resolution.
	if !withinRoot(fc.root, full) || !withinRoot(fc.root, resolved) {
		return nil, os.ErrPermission
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	data := []rune(string(raw))
	fc.files[relPath] = data
	return data, nil
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Hydrate fills WSItem.Text for every selected candidate that requires
// filesystem hydration. Session and memory candidates are already
// hydrated and pass through untouched.
//
// Out-of-range spans are clamped to the file's actual bounds and tagged
// HydrationClamped; unreadable files yield an empty-text item tagged
// HydrationMissing. Both cases keep the span in the result rather than
// dropping it, per §4.7.
func Hydrate(root string, selected []*CandidateSpan) ([]WSItem, map[string][]SpanExplanationReason) {
	cache := newFileCache(root)
	items := make([]WSItem, 0, len(selected))
	tags := make(map[string][]SpanExplanationReason)

	for _, c := range selected {
		if c.Metadata.SourceType == SourceSession || c.Metadata.SourceType == SourceMemory {
			items = append(items, WSItem{
				SpanRef:   c.SpanRef,
				Text:      c.TextPreview,
				Metadata:  c.Metadata,
				Scores:    c.Scores,
				BaseScore: c.BaseScore,
				MMRScore:  c.MMRScore,
			})
			continue
		}

		item := WSItem{
			SpanRef:   c.SpanRef,
			Metadata:  c.Metadata,
			Scores:    c.Scores,
			BaseScore: c.BaseScore,
			MMRScore:  c.MMRScore,
		}

		data, err := cache.read(c.Metadata.Filepath)
		if err != nil {
			item.Text = ""
			tags[c.SpanRef.SpanID] = append(tags[c.SpanRef.SpanID], ReasonHydrationMissing)
			items = append(items, item)
			continue
		}

		start, end := c.SpanRef.CharStart, c.SpanRef.CharEnd
		clamped := false
		if start < 0 {
			start, clamped = 0, true
		}
		if end > len(data) {
			end, clamped = len(data), true
		}
		if start > end {
			start, end = 0, 0
			clamped = true
		}

		item.Text = string(data[start:end])
		if clamped {
			tags[c.SpanRef.SpanID] = append(tags[c.SpanRef.SpanID], ReasonHydrationClamped)
		}
		items = append(items, item)
	}

	return items, tags
}
