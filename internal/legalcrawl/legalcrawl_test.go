package legalcrawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCrawlDomain_FindsSirenOnLegalPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><a href="/mentions-legales">Mentions légales</a></body></html>`))
	})
	mux.HandleFunc("/mentions-legales", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>SIREN: 732 829 320</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewCrawler(srv.Client())
	result := c.crawlDomainAt(context.Background(), srv.URL)
	if !result.Found.SIREN["732829320"] {
		t.Fatalf("expected SIREN extracted from legal page, got %+v", result.Found)
	}
}

func TestCrawlDomain_NonHTMLIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"siren":"732829320"}`))
	}))
	defer srv.Close()

	c := NewCrawler(srv.Client())
	result := c.crawlDomainAt(context.Background(), srv.URL)
	if result.Found.Any() {
		t.Fatalf("expected no identifiers extracted from non-HTML response, got %+v", result.Found)
	}
}

func TestFindLegalLinks_IncludesCommonPathsAndAnchors(t *testing.T) {
	htmlBody := `<html><body><a href="/impressum">Impressum</a></body></html>`
	links := findLegalLinks(htmlBody, "https://example.com")
	joined := strings.Join(links, " ")
	if !strings.Contains(joined, "/impressum") {
		t.Fatalf("expected anchor-discovered impressum link, got %v", links)
	}
	if !strings.Contains(joined, "/legal-notice") {
		t.Fatalf("expected common-path legal-notice link, got %v", links)
	}
}

func TestFindLegalLinks_CapsAtTwelve(t *testing.T) {
	links := findLegalLinks("", "https://example.com")
	if len(links) != hardCapPages {
		t.Fatalf("expected exactly %d links, got %d", hardCapPages, len(links))
	}
}
