package splitter

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SplitMarkdown cuts markdown into pieces that never cross a level 1 or 2
// heading. Each piece carries the heading it appeared under, oversized
// sections fall back to the word window of Split.
func (s *Splitter) SplitMarkdown(markdown string) []Piece {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var pieces []Piece
	var section string
	var buf []string

	flush := func() {
		if len(buf) == 0 {
			return
		}
		for _, p := range s.Split(strings.Join(buf, "\n\n")) {
			p.Section = section
			pieces = append(pieces, p)
		}
		buf = nil
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 1 || n.Level == 2 {
				flush()
				section = string(n.Text(reader.Source()))
				continue
			}
			if txt := string(n.Text(reader.Source())); txt != "" {
				buf = append(buf, txt)
			}
		case *ast.FencedCodeBlock:
			lang := string(n.Language(reader.Source()))
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(reader.Source()))
			}
			buf = append(buf, "```"+lang+"\n"+code.String()+"```")
		default:
			if txt := extractText(node, reader.Source()); txt != "" {
				buf = append(buf, txt)
			}
		}
	}
	flush()
	return pieces
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
