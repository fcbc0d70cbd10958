package renderengine

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// mathInline is an AST node holding a $...$ or $$...$$ span verbatim
// (spec §4.6: "math ($…$, $$…$$)"). AgBlogger does not evaluate math
// itself; the node exists only to stop goldmark's inline parser (and,
// downstream, the HTML sanitizer) from treating the delimited content
// as markdown, so a client-side renderer such as KaTeX can pick up the
// untouched source later.
type mathInline struct {
	ast.BaseInline
	Segment text.Segment
	Display bool
}

var mathInlineKind = ast.NewNodeKind("AgBloggerMathInline")

func (n *mathInline) Kind() ast.NodeKind { return mathInlineKind }

func (n *mathInline) Dump(source []byte, level int) {
	m := map[string]string{"Display": boolString(n.Display)}
	ast.DumpHelper(n, source, level, m, nil)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// mathInlineParser recognizes $$...$$  before falling back to $...$, per
// the spec's precedence of display math over inline math.
type mathInlineParser struct{}

func (mathInlineParser) Trigger() []byte { return []byte{'$'} }

func (mathInlineParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, segment := block.PeekLine()
	if len(line) == 0 || line[0] != '$' {
		return nil
	}

	display := len(line) > 1 && line[1] == '$'
	delim := "$"
	if display {
		delim = "$$"
	}

	rest := line[len(delim):]
	closeIdx := indexOf(rest, delim)
	if closeIdx < 0 {
		return nil
	}
	// Reject an empty math span ("$$" with nothing between) and a
	// display closer accidentally matched by an inline search (e.g.
	// "$x$$y$" — the inline case must not consume past a lone "$").
	if !display && closeIdx == 0 {
		return nil
	}

	contentStart := segment.Start + len(delim)
	contentEnd := contentStart + closeIdx
	totalLen := len(delim) + closeIdx + len(delim)

	block.Advance(totalLen)
	return &mathInline{
		Segment: text.NewSegment(contentStart, contentEnd),
		Display: display,
	}
}

func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}

// mathInlineRenderer renders the captured segment back out verbatim,
// wrapped with its original delimiters and an HTML-escaped body, inside
// a span a client-side math renderer can target by class.
type mathInlineRenderer struct{}

func (r *mathInlineRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(mathInlineKind, r.renderMathInline)
}

func (r *mathInlineRenderer) renderMathInline(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	node := n.(*mathInline)
	class := "math-inline"
	delim := "$"
	if node.Display {
		class = "math-display"
		delim = "$$"
	}
	_, _ = w.WriteString(`<span class="` + class + `">` + delim)
	_, _ = w.Write(util.EscapeHTML(node.Segment.Value(source)))
	_, _ = w.WriteString(delim + `</span>`)
	return ast.WalkContinue, nil
}

// Extend wires the math inline parser and renderer into the goldmark
// pipeline, replacing the earlier no-op placeholder.
func (mathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(mathInlineParser{}, 150),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(&mathInlineRenderer{}, 150),
		),
	)
}
