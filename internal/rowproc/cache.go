package rowproc

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
)

// defaultCacheSize bounds the two logically-unbounded caches described in
// spec §4.8/§9 so a long batch doesn't grow memory without limit.
const defaultCacheSize = 100_000

// searchKey mirrors search_cache_key: (query, gl, hl, num, page).
type searchKey struct {
	Query string
	GL    string
	HL    string
	Num   int
	Page  int
}

// searchCache caches candidate lists by the exact query+locale+paging
// tuple that produced them.
type searchCache struct {
	lru *lru.Cache[searchKey, []candidate.Candidate]
}

func newSearchCache() *searchCache {
	c, _ := lru.New[searchKey, []candidate.Candidate](defaultCacheSize)
	return &searchCache{lru: c}
}

func (c *searchCache) get(k searchKey) ([]candidate.Candidate, bool) {
	return c.lru.Get(k)
}

func (c *searchCache) put(k searchKey, v []candidate.Candidate) {
	c.lru.Add(k, v)
}

// llmCache caches a judge's Choice by (company, sorted context kv pairs,
// candidate (url,domain) tuples), serialized to a string since a slice of
// candidates isn't a comparable Go map key.
type llmCache struct {
	lru *lru.Cache[string, llmjudge.Choice]
}

func newLLMCache() *llmCache {
	c, _ := lru.New[string, llmjudge.Choice](defaultCacheSize)
	return &llmCache{lru: c}
}

func llmCacheKey(company string, ctx map[string]string, candidates []candidate.Candidate) string {
	var b strings.Builder
	b.WriteString(company)
	b.WriteString("\x00")

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(ctx[k])
		b.WriteString(";")
	}
	b.WriteString("\x00")

	for i, c := range candidates {
		if i >= candidate.MaxPerCompany {
			break
		}
		b.WriteString(c.URL)
		b.WriteString("|")
		b.WriteString(c.Domain)
		b.WriteString(";")
	}
	return b.String()
}

func (c *llmCache) get(key string) (llmjudge.Choice, bool) {
	return c.lru.Get(key)
}

func (c *llmCache) put(key string, v llmjudge.Choice) {
	c.lru.Add(key, v)
}
