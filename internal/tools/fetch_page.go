package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type fetchArgs struct {
	URL string `json:"url" jsonschema:"description=Absolute http or https URL of the page or PDF to read"`
}

// FetchPageTool downloads a URL and returns its readable text.
// HTML is reduced to visible text, PDFs are extracted page by page,
// other text types are returned as is.
type FetchPageTool struct {
	Client   *http.Client
	MaxBytes int
	MaxChars int
	MaxPages int
}

func NewFetchPageTool() *FetchPageTool {
	return &FetchPageTool{
		Client:   &http.Client{Timeout: 10 * time.Second},
		MaxBytes: 2 << 20,
		MaxChars: 12000,
		MaxPages: 20,
	}
}

func (f *FetchPageTool) Name() string { return "fetch_page" }

func (f *FetchPageTool) Description() string {
	return "Read the text content of a web page or PDF found through search, to verify facts and gather details."
}

func (f *FetchPageTool) Parameters() map[string]any { return schemaFor(&fetchArgs{}) }

func (f *FetchPageTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args fetchArgs
	if err := decodeArgs(f.Name(), arguments, &args); err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(args.URL))
	if err != nil || u.Host == "" {
		return "", &ArgumentError{Tool: f.Name(), Err: fmt.Errorf("invalid url %q", args.URL)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ArgumentError{Tool: f.Name(), Err: fmt.Errorf("unsupported scheme: %s", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		// unreachable hosts are dead links too; let the model choose another source
		return fmt.Sprintf("Could not read %s: %v", u, err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("Could not read %s: status %d", u, resp.StatusCode), nil
	}

	// limit body to avoid huge transfers
	lr := io.LimitedReader{R: resp.Body, N: int64(f.MaxBytes)}
	buf, err := io.ReadAll(&lr)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	var text string
	switch {
	case bytes.HasPrefix(buf, []byte("%PDF-")) || strings.Contains(ctype, "pdf"):
		if lr.N == 0 {
			return fmt.Sprintf("Could not read %s: PDF larger than %d bytes", u, f.MaxBytes), nil
		}
		text, err = pdfText(buf, f.MaxPages)
		if err != nil {
			return fmt.Sprintf("Could not read %s: %v", u, err), nil
		}
	case strings.Contains(ctype, "html") || looksLikeHTML(buf):
		text, err = htmlToText(string(buf))
		if err != nil {
			return "", err
		}
	case ctype == "" || strings.HasPrefix(ctype, "text/") || strings.Contains(ctype, "json") || strings.Contains(ctype, "xml"):
		text = strings.TrimSpace(string(buf))
	default:
		return "", &ArgumentError{Tool: f.Name(), Err: errors.New("unsupported content type " + ctype)}
	}
	return truncate(text, f.MaxChars), nil
}

func looksLikeHTML(b []byte) bool {
	head := strings.ToLower(string(b[:min(len(b), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") || strings.Contains(head, "<body")
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	// back off to a rune boundary
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}
