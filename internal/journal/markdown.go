package journal

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText strips markdown structure from entry bytes, leaving the prose
// that goes into prompts. Headings and list items keep their text; links
// keep their label; code blocks keep their content.
func PlainText(source []byte) string {
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch t := n.(type) {
			case *ast.Text:
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.AutoLink:
				b.Write(t.URL(source))
			case *ast.FencedCodeBlock:
				writeLines(&b, source, n)
			case *ast.CodeBlock:
				writeLines(&b, source, n)
			}
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindListItem:
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

func writeLines(b *strings.Builder, source []byte, n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
}

// WordCount counts whitespace-separated words in the stripped entry text.
func WordCount(source []byte) int {
	return len(strings.Fields(PlainText(source)))
}
