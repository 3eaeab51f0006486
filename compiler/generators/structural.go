package generators

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/contextdb/wscompile/compiler"
)

// StructuralGen is a locally computed generator: unlike the semantic and
// lexical channels, which run as external services, structural matching
// runs against the repository directly by parsing candidate files with
// tree-sitter and scoring symbol names against the request's StructHints
// (§4.1, §4.2).
type StructuralGen struct {
	GenName string
	Root    string

	// Files lists the repository-relative source files the generator is
	// willing to parse. Populated by the caller (typically once, at
	// process startup, from a directory walk) rather than re-walked per
	// request.
	Files []string
}

func NewStructuralGen(root string, files []string) *StructuralGen {
	return &StructuralGen{GenName: "structural", Root: root, Files: files}
}

func (g *StructuralGen) Name() string { return g.GenName }

var extLanguages = map[string]*sitter.Language{
	".go": golang.GetLanguage(),
	".py": python.GetLanguage(),
	".js": javascript.GetLanguage(),
	".ts": javascript.GetLanguage(),
}

func (g *StructuralGen) Generate(ctx context.Context, signals compiler.DerivedSignals, filters compiler.HardFilters, topK int) ([]*compiler.CandidateSpan, error) {
	if len(signals.StructHints.SectionPatterns) == 0 && len(signals.StructHints.DocTypes) == 0 {
		return nil, nil
	}

	var out []*compiler.CandidateSpan
	for _, relPath := range g.Files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		lang, ok := extLanguages[filepath.Ext(relPath)]
		if !ok {
			continue
		}
		if len(filters.Paths) > 0 && !matchesStructuralFilters(filters, relPath) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(g.Root, relPath))
		if err != nil {
			continue
		}

		parser := sitter.NewParser()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, content)
		if err != nil {
			continue
		}

		hits := scoreSymbols(tree.RootNode(), content, signals.StructHints)
		tree.Close()
		if hits == 0 {
			continue
		}

		out = append(out, &compiler.CandidateSpan{
			SpanRef: compiler.SpanRef{
				DocVersionID: relPath,
				SpanID:       relPath + "#structural",
				CharStart:    0,
				CharEnd:      len(content),
				TokenCost:    len(content) / 4,
			},
			Scores:      compiler.ScoreChannels{Structural: float64(hits)},
			TextPreview: "structural match in " + relPath,
			Metadata: compiler.SpanMetadata{
				Filepath:     relPath,
				CreatedAt:    time.Now().Unix(),
				RecencyScore: 0.5,
				SourceType:   compiler.SourceArtifact,
			},
		})

		if topK > 0 && len(out) >= topK {
			break
		}
	}
	return out, nil
}

func matchesStructuralFilters(filters compiler.HardFilters, relPath string) bool {
	for _, pattern := range filters.Paths {
		if strings.Contains(relPath, strings.Trim(pattern, "*")) {
			return true
		}
	}
	return false
}

// scoreSymbols walks the tree looking for identifier nodes whose text
// contains any of the requested section patterns or doc-type hints,
// returning a hit count used as the structural score's raw value.
func scoreSymbols(node *sitter.Node, content []byte, hints compiler.StructHints) int {
	hits := 0
	needles := append(append([]string{}, hints.SectionPatterns...), hints.DocTypes...)
	if len(needles) == 0 {
		return 0
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "identifier" || n.Type() == "type_identifier" || n.Type() == "property_identifier" {
			text := strings.ToLower(n.Content(content))
			for _, needle := range needles {
				if strings.Contains(text, strings.ToLower(needle)) {
					hits++
					break
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)
	return hits
}
