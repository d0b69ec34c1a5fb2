package universe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

const (
	SP500            = "S&P 500"
	defaultSP500Page = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"
)

// WikipediaProvider scrapes the S&P 500 constituents table. Class-share
// tickers such as BRK.B are rewritten to the Yahoo form BRK-B.
type WikipediaProvider struct {
	URL    string
	TTL    time.Duration
	Client *http.Client

	mu        sync.Mutex
	symbols   []string
	fetchedAt time.Time
}

func NewWikipediaProvider(ttl time.Duration) *WikipediaProvider {
	return &WikipediaProvider{
		URL:    defaultSP500Page,
		TTL:    ttl,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *WikipediaProvider) Universes() []string { return []string{SP500} }

func (p *WikipediaProvider) ListSymbols(ctx context.Context, name string) ([]string, error) {
	if name != SP500 {
		return nil, &LookupError{Universe: name, Err: ErrUnknownUniverse}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.symbols != nil && time.Since(p.fetchedAt) < p.TTL {
		return append([]string(nil), p.symbols...), nil
	}

	symbols, err := p.fetch(ctx)
	if err != nil {
		return nil, &LookupError{Universe: name, Err: err}
	}
	p.symbols = symbols
	p.fetchedAt = time.Now()
	return append([]string(nil), symbols...), nil
}

func (p *WikipediaProvider) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "breakout-screener/1.0")
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download constituents page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download constituents page: status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse constituents page: %w", err)
	}
	table := findByID(doc, "constituents")
	if table == nil {
		return nil, errors.New("constituents table not found")
	}

	var tickers []string
	forEach(table, "tr", func(tr *html.Node) {
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "td" {
				tickers = append(tickers, strings.ReplaceAll(textOf(c), ".", "-"))
				return
			}
		}
	})
	symbols := normalize(tickers, "")
	if len(symbols) == 0 {
		return nil, errors.New("constituents table is empty")
	}
	return symbols, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func forEach(n *html.Node, tag string, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == tag {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		forEach(c, tag, fn)
	}
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
