package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const DefaultCrawlTimeout = 3 * time.Minute

type Config struct {
	Site     string
	Seeds    []string
	MaxPages int
	Results  int

	// CrawlTimeout bounds the one-time crawl independently of any request.
	CrawlTimeout time.Duration
}

// SiteSearcher crawls the site once, on first use, and answers searches
// from the in-memory index.
type SiteSearcher struct {
	site   *url.URL
	cfg    Config
	client *http.Client

	flight singleflight.Group
	mu     sync.Mutex
	index  *index
}

func NewSiteSearcher(cfg Config, client *http.Client) (*SiteSearcher, error) {
	if cfg.Site == "" {
		cfg.Site = DefaultSite
	}
	site, err := url.Parse(strings.TrimSuffix(cfg.Site, "/"))
	if err != nil || site.Host == "" {
		return nil, fmt.Errorf("invalid site %q", cfg.Site)
	}
	if len(cfg.Seeds) == 0 {
		cfg.Seeds = []string{site.String()}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 60
	}
	if cfg.Results <= 0 {
		cfg.Results = 6
	}
	if cfg.CrawlTimeout <= 0 {
		cfg.CrawlTimeout = DefaultCrawlTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	s := &SiteSearcher{site: site, cfg: cfg, client: client}
	for _, seed := range cfg.Seeds {
		if !s.inScope(seed) {
			return nil, fmt.Errorf("seed %q is outside %s", seed, site)
		}
	}
	return s, nil
}

func (s *SiteSearcher) Site() string {
	return s.site.String()
}

func (s *SiteSearcher) Search(ctx context.Context, query string) (*Findings, error) {
	idx, err := s.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}

	hits := idx.search(query, s.cfg.Results)
	if len(hits) == 0 {
		return nil, ErrNotFound
	}

	log.Debug().Str("query", query).Int("passages", len(hits)).Msg("retrieval hits")
	return &Findings{Query: query, Passages: hits}, nil
}

// Warm builds the index ahead of the first search.
func (s *SiteSearcher) Warm(ctx context.Context) error {
	_, err := s.ensureIndex(ctx)
	return err
}

// ensureIndex waits for the shared crawl or for ctx, whichever ends first.
// The crawl is not tied to the caller that started it.
func (s *SiteSearcher) ensureIndex(ctx context.Context) (*index, error) {
	if idx := s.loadIndex(); idx != nil {
		return idx, nil
	}

	ch := s.flight.DoChan("index", func() (any, error) {
		if idx := s.loadIndex(); idx != nil {
			return idx, nil
		}
		crawlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CrawlTimeout)
		defer cancel()

		passages, err := s.crawl(crawlCtx)
		if err != nil {
			return nil, err
		}
		idx := newIndex(passages)
		s.mu.Lock()
		s.index = idx
		s.mu.Unlock()
		return idx, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*index), nil
	}
}

func (s *SiteSearcher) loadIndex() *index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *SiteSearcher) crawl(ctx context.Context) ([]Passage, error) {
	queue := append([]string(nil), s.cfg.Seeds...)
	visited := make(map[string]bool)
	var passages []Passage
	var lastErr error

	for len(queue) > 0 && len(visited) < s.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		u := queue[0]
		queue = queue[1:]
		if visited[u] {
			continue
		}
		visited[u] = true

		doc, err := s.fetch(ctx, u)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("failed to fetch page")
			lastErr = err
			continue
		}

		passages = append(passages, extractPassages(u, doc)...)
		for _, link := range s.links(u, doc) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}

	// a crawl cut short by its deadline is never kept
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl of %s interrupted: %w", s.site, err)
	}

	if len(passages) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("failed to crawl %s: %w", s.site, lastErr)
		}
		return nil, ErrNotFound
	}

	log.Info().Int("pages", len(visited)).Int("passages", len(passages)).Str("site", s.site.String()).Msg("site indexed")
	return passages, nil
}

func (s *SiteSearcher) fetch(ctx context.Context, u string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "hdb-resale-agent/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (s *SiteSearcher) links(base string, doc *goquery.Document) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawQuery = ""
		if s.inScope(abs.String()) {
			out = append(out, abs.String())
		}
	})
	return out
}

// inScope reports whether u is the site itself or a page below it.
func (s *SiteSearcher) inScope(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Host, s.site.Host) || parsed.Scheme != s.site.Scheme {
		return false
	}
	path := strings.TrimSuffix(parsed.Path, "/")
	return path == s.site.Path || strings.HasPrefix(path, s.site.Path+"/")
}

const maxPassageLen = 700

// extractPassages groups body text under its nearest heading.
func extractPassages(u string, doc *goquery.Document) []Passage {
	doc.Find("script, style, noscript, nav, header, footer, form").Remove()

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	section := pageTitle

	var out []Passage
	var buf strings.Builder
	flush := func() {
		text := strings.TrimSpace(buf.String())
		if len(text) >= 40 {
			out = append(out, Passage{URL: u, Title: section, Text: text})
		}
		buf.Reset()
	}

	doc.Find("h1, h2, h3, h4, p, li, td").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(sel) == "li" && sel.Find("p").Length() > 0 {
			return
		}
		switch goquery.NodeName(sel) {
		case "h1", "h2", "h3", "h4":
			flush()
			section = text
			return
		}
		if buf.Len()+len(text) > maxPassageLen {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(text)
	})
	flush()
	return out
}
