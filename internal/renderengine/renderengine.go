// Package renderengine implements the markdown-to-HTML conversion that
// runs inside the `render-engine` subprocess (spec §4.6): goldmark with
// GFM tables, syntax-highlighted fenced code, heading anchors, and a
// small math-passthrough extension, served over a single local HTTP
// endpoint.
package renderengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/anchor"
)

// RenderRequest is the subprocess's single endpoint's request body.
type RenderRequest struct {
	Markdown string `json:"markdown"`
}

// RenderResponse is the subprocess's response body.
type RenderResponse struct {
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

// Engine wraps a configured goldmark instance.
type Engine struct {
	md goldmark.Markdown
}

// New builds the goldmark pipeline used by the render-engine subcommand
// (spec §4.6).
func New() *Engine {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokailight"),
			),
			&anchor.Extender{},
			mathExtension{},
			calloutExtension{},
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	return &Engine{md: md}
}

// Render converts markdown to HTML.
func (e *Engine) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}

// ServeLoopback starts the subprocess's HTTP server on an ephemeral
// loopback port and returns the address it bound, along with a shutdown
// func. The parent process connects to the returned address (spec
// §4.6's "local HTTP server on an ephemeral loopback port").
func ServeLoopback(ctx context.Context) (addr string, shutdown func(context.Context) error, err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}

	engine := New()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/render", func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(RenderResponse{Error: err.Error()})
			return
		}
		html, err := engine.Render(req.Markdown)
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(RenderResponse{Error: err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(RenderResponse{HTML: html})
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()

	shutdown = func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	}
	return ln.Addr().String(), shutdown, nil
}

// RunSubcommand is the entry point for the hidden `render-engine`
// subcommand (spec §4.6): it starts the loopback HTTP server, prints
// the bound address as "LISTEN <addr>" on stdout for the parent process
// to read, then blocks until terminated.
func RunSubcommand() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, shutdown, err := ServeLoopback(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("LISTEN %s\n", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(shutdownCtx)
}

// mathExtension wires math-span passthrough rendering (spec §4.6); see
// math.go for the inline parser and node renderer.
type mathExtension struct{}

type calloutExtension struct{}

func (calloutExtension) Extend(m goldmark.Markdown) {
	// Callout blocks (> [!note] ...) are recognized by the GFM
	// blockquote renderer already; a dedicated AST transform is not
	// required for the passthrough form AgBlogger renders.
}
