package universe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultNSEIndexes are the index names offered by the NSE constituents list.
var DefaultNSEIndexes = []string{
	"NIFTY 50", "NIFTY 100", "NIFTY 500", "NIFTY AUTO", "NIFTY BANK",
	"NIFTY FINANCIAL SERVICES", "NIFTY HEALTHCARE", "NIFTY PHARMA", "NIFTY IT", "NIFTY OIL & GAS",
}

// CSVProvider reads index membership from a remote CSV with "index" and
// "stock" columns. The table is downloaded once per TTL and shared by all
// indexes.
type CSVProvider struct {
	URL    string
	Suffix string
	Names  []string
	TTL    time.Duration
	Client *http.Client

	mu        sync.Mutex
	members   map[string][]string
	fetchedAt time.Time
	now       func() time.Time
}

func NewCSVProvider(url, suffix string, names []string, ttl time.Duration) *CSVProvider {
	if len(names) == 0 {
		names = DefaultNSEIndexes
	}
	return &CSVProvider{
		URL:    url,
		Suffix: suffix,
		Names:  names,
		TTL:    ttl,
		Client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

func (p *CSVProvider) Universes() []string {
	return append([]string(nil), p.Names...)
}

func (p *CSVProvider) ListSymbols(ctx context.Context, name string) ([]string, error) {
	members, err := p.load(ctx)
	if err != nil {
		return nil, &LookupError{Universe: name, Err: err}
	}
	symbols, ok := members[name]
	if !ok {
		return nil, &LookupError{Universe: name, Err: ErrUnknownUniverse}
	}
	return append([]string(nil), symbols...), nil
}

func (p *CSVProvider) load(ctx context.Context) (map[string][]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.members != nil && p.now().Sub(p.fetchedAt) < p.TTL {
		return p.members, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download constituents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download constituents: status %d", resp.StatusCode)
	}

	members, err := parseMembership(resp.Body, p.Suffix)
	if err != nil {
		return nil, err
	}
	p.members = members
	p.fetchedAt = p.now()
	return members, nil
}

func parseMembership(r io.Reader, suffix string) (map[string][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read constituents header: %w", err)
	}
	indexCol, stockCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "index":
			indexCol = i
		case "stock":
			stockCol = i
		}
	}
	if indexCol < 0 || stockCol < 0 {
		return nil, errors.New("constituents csv: missing index or stock column")
	}

	raw := make(map[string][]string)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read constituents: %w", err)
		}
		if indexCol >= len(rec) || stockCol >= len(rec) {
			continue
		}
		idx := strings.TrimSpace(rec[indexCol])
		raw[idx] = append(raw[idx], rec[stockCol])
	}

	members := make(map[string][]string, len(raw))
	for idx, symbols := range raw {
		members[idx] = normalize(symbols, suffix)
	}
	return members, nil
}
