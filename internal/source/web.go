package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kiokusearch/kioku/internal/models"
	"github.com/kiokusearch/kioku/internal/sourceid"
	"github.com/kiokusearch/kioku/pkg/utils"
)

const (
	webUserAgent    = "kioku/1.0 (+https://github.com/kiokusearch/kioku)"
	webFetchTimeout = 30 * time.Second
	// maxWebBytes caps the response body read from a page.
	maxWebBytes = 10 << 20
)

// WebAdapter fetches a page over HTTP and extracts its visible text.
type WebAdapter struct {
	client *http.Client
	logger *zap.Logger
}

// NewWebAdapter returns a web adapter with a bounded fetch timeout.
func NewWebAdapter(logger *zap.Logger) *WebAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebAdapter{
		client: &http.Client{Timeout: webFetchTimeout},
		logger: logger,
	}
}

// Type returns the source type handled by this adapter.
func (a *WebAdapter) Type() models.SourceType { return models.SourceWeb }

// Extract fetches target and returns one extraction with the page text.
func (a *WebAdapter) Extract(ctx context.Context, target string) ([]Extraction, error) {
	pageURL, err := sourceid.ForURL(target)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: target, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionError{
			Source: a.Type(), Target: pageURL,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBytes))
	if err != nil {
		return nil, &ExtractionError{Source: a.Type(), Target: pageURL, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	var title, text string
	switch {
	case strings.Contains(contentType, "text/html"), contentType == "":
		title, text, err = parseHTML(string(body))
		if err != nil {
			return nil, &ExtractionError{Source: a.Type(), Target: pageURL, Err: err}
		}
	case strings.HasPrefix(contentType, "text/"):
		text, _ = extractPlain(body)
	default:
		return nil, &ExtractionError{
			Source: a.Type(), Target: pageURL,
			Err: fmt.Errorf("unsupported content type %q", contentType),
		}
	}

	if title == "" {
		title = utils.FirstNonEmptyLine(text)
	}
	if title == "" {
		title = pageURL
	}

	return []Extraction{{
		Content: text,
		Meta: models.Metadata{
			Title:      title,
			SourcePath: pageURL,
			MimeType:   "text/html",
		},
	}}, nil
}

// parseHTML walks the DOM collecting visible text, skipping script, style,
// and noscript subtrees, and captures the document title.
func parseHTML(page string) (title, text string, err error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.Join(parts, " "), nil
}
