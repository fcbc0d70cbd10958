package renderengine

import (
	"strings"
	"testing"
)

func TestRenderGFMTable(t *testing.T) {
	e := New()
	out, err := e.Render("| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Errorf("expected GFM table, got %q", out)
	}
}

func TestRenderFencedCodeHighlighted(t *testing.T) {
	e := New()
	out, err := e.Render("```go\nfunc main() {}\n```\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<pre") {
		t.Errorf("expected fenced code block, got %q", out)
	}
}

func TestRenderInlineMathPassthrough(t *testing.T) {
	e := New()
	out, err := e.Render("Euler's identity is $e^{i\\pi}+1=0$.\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `<span class="math-inline">$e^{i\pi}+1=0$</span>`) {
		t.Errorf("expected inline math span preserved verbatim, got %q", out)
	}
}

func TestRenderDisplayMathPassthrough(t *testing.T) {
	e := New()
	out, err := e.Render("$$\\sum_{i=0}^n i$$\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `<span class="math-display">$$`) {
		t.Errorf("expected display math span, got %q", out)
	}
}

func TestRenderMathDoesNotConsumeAdjacentInlineSpans(t *testing.T) {
	e := New()
	out, err := e.Render("$x$ and $y$\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `<span class="math-inline">$x$</span>`) || !strings.Contains(out, `<span class="math-inline">$y$</span>`) {
		t.Errorf("expected two separate inline math spans, got %q", out)
	}
}

func TestRenderHeadingAnchor(t *testing.T) {
	e := New()
	out, err := e.Render("# Hello World\n")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, `id="hello-world"`) {
		t.Errorf("expected heading anchor id, got %q", out)
	}
}
