// Package render is the parent process's client for the render-engine
// subprocess (spec §4.6): subprocess lifecycle (spawn under a
// double-checked lock, health check, bounded auto-restart), a
// breaker-wrapped HTTP client shaped after
// internal/adapter/litellm/client.go's doRequest, and a semaphore bound
// on concurrent render calls.
package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/renderengine"
	"github.com/agblogger/agblogger/internal/resilience"
)

// Config tunes the subprocess pool (spec §4.6, §6 RENDERER_* env vars).
type Config struct {
	Timeout             time.Duration
	MaxRestarts         int
	StartupTimeout      time.Duration
	Concurrency         int64
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	// MaxInputBytes bounds the markdown document size Render accepts
	// before dispatching to the subprocess (spec §4.6 "input over size
	// limit ⇒ InputTooLarge").
	MaxInputBytes int64
}

// Client owns the render-engine subprocess lifecycle and dispatches
// render calls to it.
type Client struct {
	cfg     Config
	sem     *semaphore.Weighted
	breaker *resilience.Breaker
	http    *http.Client

	mu       sync.Mutex
	cmd      *exec.Cmd
	baseURL  string
	restarts int
}

// New returns a Client that lazily spawns the render-engine subprocess
// on first use (spec §4.6 "spawn on first use under a double-checked
// lock").
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.Concurrency),
		breaker: resilience.NewBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Render converts markdown to HTML via the subprocess, bounded by the
// configured concurrency semaphore and per-call timeout (spec §4.6).
func (c *Client) Render(ctx context.Context, markdown string) (string, error) {
	if c.cfg.MaxInputBytes > 0 && int64(len(markdown)) > c.cfg.MaxInputBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrInputTooLarge, len(markdown), c.cfg.MaxInputBytes)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRenderUnavailable, err)
	}
	defer c.sem.Release(1)

	renderCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	html, err := c.renderOnce(renderCtx, markdown)
	if err == nil {
		return html, nil
	}
	if renderCtx.Err() != nil {
		return "", fmt.Errorf("%w", domain.ErrRenderTimeout)
	}

	// One restart attempt on transport failure (spec §4.6).
	if restartErr := c.restart(ctx); restartErr != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRenderUnavailable, restartErr)
	}
	html, err = c.renderOnce(renderCtx, markdown)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRenderUnavailable, err)
	}
	return html, nil
}

func (c *Client) renderOnce(ctx context.Context, markdown string) (string, error) {
	if err := c.ensureStarted(ctx); err != nil {
		return "", err
	}

	body, err := c.doRequest(ctx, markdown)
	if err != nil {
		return "", err
	}

	var resp renderengine.RenderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrRenderFailed, resp.Error)
	}
	return resp.HTML, nil
}

// doRequest performs the actual HTTP call behind the breaker, mirroring
// the teacher's litellm.Client.doRequest shape.
func (c *Client) doRequest(ctx context.Context, markdown string) ([]byte, error) {
	var result []byte
	call := func() error {
		reqBody, err := json.Marshal(renderengine.RenderRequest{Markdown: markdown})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.currentBaseURL()+"/render", bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("render-engine returned %d: %s", resp.StatusCode, data)
		}
		result = data
		return nil
	}

	if err := c.breaker.Execute(call); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) currentBaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

// ensureStarted spawns the subprocess if it isn't already running,
// under a double-checked lock (spec §4.6).
func (c *Client) ensureStarted(ctx context.Context) error {
	c.mu.Lock()
	if c.cmd != nil && c.baseURL != "" {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.baseURL != "" {
		return nil
	}
	return c.spawnLocked(ctx)
}

// spawnLocked must be called with c.mu held.
func (c *Client) spawnLocked(ctx context.Context) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	addrCh := make(chan string, 1)
	cmd := exec.CommandContext(ctx, exePath, "render-engine")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start render-engine: %w", err)
	}

	go scanForAddr(stdout, addrCh)

	startupCtx, cancel := context.WithTimeout(ctx, c.cfg.StartupTimeout)
	defer cancel()

	select {
	case addr := <-addrCh:
		c.cmd = cmd
		c.baseURL = "http://" + addr
		return c.waitHealthy(startupCtx)
	case <-startupCtx.Done():
		_ = cmd.Process.Kill()
		return fmt.Errorf("render-engine did not report an address within %s", c.cfg.StartupTimeout)
	}
}

func (c *Client) waitHealthy(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("render-engine health check timed out")
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
			if err != nil {
				return err
			}
			resp, err := c.http.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
	}
}

// restart kills and respawns the subprocess, bounded by MaxRestarts
// (spec §4.6 "auto-restart on failure with bounded retries").
func (c *Client) restart(ctx context.Context) error {
	c.mu.Lock()
	if c.restarts >= c.cfg.MaxRestarts {
		c.mu.Unlock()
		return fmt.Errorf("render-engine exceeded %d restart attempts", c.cfg.MaxRestarts)
	}
	c.restarts++
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.cmd = nil
	c.baseURL = ""
	c.mu.Unlock()

	return c.ensureStarted(ctx)
}

// scanForAddr reads the subprocess's stdout line by line looking for
// the "LISTEN " address line written by renderengine.RunSubcommand,
// forwarding every other line to the parent's own stdout for
// visibility.
func scanForAddr(stdout io.Reader, addrCh chan<- string) {
	scanner := bufio.NewScanner(stdout)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !found {
			if addr, ok := strings.CutPrefix(line, "LISTEN "); ok {
				addrCh <- addr
				found = true
				continue
			}
		}
		fmt.Println(line)
	}
}

// Close terminates the subprocess if running.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}
