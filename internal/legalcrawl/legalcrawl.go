// Package legalcrawl fetches a domain's homepage and likely legal-notice
// pages and extracts registration identifiers from them.
package legalcrawl

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/domainresolve/enrich-core/internal/registration"
	"github.com/domainresolve/enrich-core/internal/tokenize"
)

// legalTextPatterns are visible anchor-text substrings (lowercased) that
// mark a link as likely pointing to a legal-notice page.
var legalTextPatterns = []string{
	"mentions légales", "mentions legales", "informations légales", "informations legales",
	"legal notice", "legal notices", "impressum", "imprint", "terms", "conditions", "cgu", "cgv",
	"conditions générales", "conditions generales", "informations juridiques", "legal",
}

var legalHrefPatterns = []string{"legal", "impressum", "mentions", "conditions", "terms"}

// commonLegalPaths is the fixed fallback path list, expanded with and
// without a trailing slash.
var commonLegalPaths = []string{
	"/mentions-legales", "/mentions_legales", "/informations-legales", "/legal", "/legal-notice",
	"/legal-notices", "/impressum", "/imprint", "/cgu", "/cgv", "/terms", "/conditions",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var headersBase = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "fr-FR,fr;q=0.9,en;q=0.8,de;q=0.7,nl;q=0.7",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
	"Connection":      "keep-alive",
}

const hardCapPages = 12

// Result is the outcome of crawling one domain.
type Result struct {
	Domain     string
	Found      registration.Set
	LegalURLs  []string
}

// Crawler fetches pages over HTTP with the fixed User-Agent pool and
// header set, honouring redirects and accepting only text/html responses.
type Crawler struct {
	Client *http.Client
}

// NewCrawler builds a Crawler. client must not be nil.
func NewCrawler(client *http.Client) *Crawler {
	return &Crawler{Client: client}
}

func randomHeaders(req *http.Request) {
	for k, v := range headersBase {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
}

// fetchGet issues one GET, returning the decoded HTML body, or "" if the
// request fails, the response isn't text/html, or the body can't be read.
// If charset decoding fails, the raw body is returned undecoded. This
// mirrors fetch_get's "never error, just return empty" contract: the
// caller treats an empty result identically to a non-2xx response.
func (c *Crawler) fetchGet(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	randomHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(ct), "text/html") {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ""
	}
	reader, err := charset.NewReader(bytes.NewReader(body), ct)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// findLegalLinks discovers candidate legal-page URLs from a homepage's
// anchors (by visible text or href) plus the fixed common-path list,
// deduplicated and capped at 12.
func findLegalLinks(htmlText, baseURL string) []string {
	var out []string
	if htmlText != "" {
		out = append(out, anchorLinks(htmlText, baseURL)...)
	}
	if u, err := url.Parse(baseURL); err == nil {
		base := u.Scheme + "://" + u.Host
		for _, p := range commonLegalPaths {
			out = append(out, base+p, base+p+"/")
		}
	}
	return dedupeCap(out, hardCapPages)
}

func anchorLinks(htmlText, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	node, err := html.Parse(strings.NewReader(htmlText))
	if err != nil || node == nil {
		return nil
	}
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "a") {
			var href string
			for _, a := range n.Attr {
				if strings.EqualFold(a.Key, "href") {
					href = a.Val
					break
				}
			}
			if href != "" {
				text := strings.ToLower(strings.TrimSpace(anchorText(n)))
				hrefLower := strings.ToLower(href)
				if containsAny(text, legalTextPatterns) || containsAny(hrefLower, legalHrefPatterns) {
					if resolved, err := base.Parse(href); err == nil {
						out = append(out, resolved.String())
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return out
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func dedupeCap(urls []string, limit int) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, limit)
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// CrawlDomain fetches domain's homepage and up to 12 likely legal pages,
// folding every extracted registration identifier into one Set.
func (c *Crawler) CrawlDomain(ctx context.Context, domain string) Result {
	host := tokenize.StripToDomain(domain)
	return c.crawlDomainAt(ctx, "https://"+host)
}

// crawlDomainAt is CrawlDomain parameterized on the homepage base URL, so
// tests can point it at an httptest server instead of a real https host.
func (c *Crawler) crawlDomainAt(ctx context.Context, base string) Result {
	host := tokenize.StripToDomain(base)
	homeHTML := c.fetchGet(ctx, base)

	legalURLs := findLegalLinks(homeHTML, base)
	toFetch := legalURLs
	hasBase := false
	for _, u := range toFetch {
		if u == base {
			hasBase = true
			break
		}
	}
	if !hasBase {
		toFetch = append(toFetch, base)
	}

	found := registration.NewSet()
	if homeHTML != "" {
		found.Merge(registration.ExtractFromText(homeHTML))
	}
	for _, u := range toFetch {
		select {
		case <-ctx.Done():
			return Result{Domain: host, Found: found, LegalURLs: legalURLs}
		default:
		}
		pageHTML := c.fetchGet(ctx, u)
		if pageHTML == "" {
			continue
		}
		found.Merge(registration.ExtractFromText(pageHTML))
	}
	return Result{Domain: host, Found: found, LegalURLs: legalURLs}
}
