package datascience

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// SearchClient performs the three external lookups the Hypothesis and
// Search roles use (§4.8.1). Each method degrades to a returned error
// rather than panicking; internal/tool.Call converts that into a textual
// tool result, per §4.8.7's "tool failures are surfaced as tool messages,
// not fatal".
type SearchClient struct {
	HTTP *http.Client
}

// NewSearchClient builds a client with a bounded timeout, matching the
// teacher pack's web-search tools (vanducng-goclaw's duckDuckGoSearchProvider).
func NewSearchClient() *SearchClient {
	return &SearchClient{HTTP: &http.Client{Timeout: 10 * time.Second}}
}

const searchUserAgent = "Mozilla/5.0 (compatible; OrchestraxBot/1.0)"

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

// Web runs a DuckDuckGo HTML search and renders the top results as plain
// text, grounded on the teacher pack's DuckDuckGo scraper.
func (c *SearchClient) Web(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))
	body, err := c.fetch(ctx, searchURL)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	links := ddgLinkRe.FindAllStringSubmatch(body, 5)
	if len(links) == 0 {
		return fmt.Sprintf("no web results for %q", query), nil
	}
	snippets := ddgSnippetRe.FindAllStringSubmatch(body, 5)

	var b strings.Builder
	for i, m := range links {
		title := strings.TrimSpace(htmlTagRe.ReplaceAllString(m[2], ""))
		desc := ""
		if i < len(snippets) {
			desc = strings.TrimSpace(htmlTagRe.ReplaceAllString(snippets[i][1], ""))
		}
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, title, desc)
	}
	return b.String(), nil
}

// wikiSearchResponse mirrors the fields used out of Wikipedia's opensearch
// action API response, a 4-element JSON array: [query, titles, snippets, urls].
type wikiSearchResponse [4]json.RawMessage

// Wiki queries Wikipedia's opensearch endpoint and renders title/snippet
// pairs as plain text.
func (c *SearchClient) Wiki(ctx context.Context, query string) (string, error) {
	apiURL := fmt.Sprintf("https://en.wikipedia.org/w/api.php?action=opensearch&format=json&limit=5&search=%s", url.QueryEscape(query))
	body, err := c.fetch(ctx, apiURL)
	if err != nil {
		return "", fmt.Errorf("wiki search: %w", err)
	}

	var resp wikiSearchResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return "", fmt.Errorf("wiki search: decode: %w", err)
	}
	var titles, descriptions, urls []string
	if err := json.Unmarshal(resp[1], &titles); err != nil {
		return "", fmt.Errorf("wiki search: decode titles: %w", err)
	}
	_ = json.Unmarshal(resp[2], &descriptions)
	_ = json.Unmarshal(resp[3], &urls)

	if len(titles) == 0 {
		return fmt.Sprintf("no wiki results for %q", query), nil
	}
	var b strings.Builder
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		if i < len(descriptions) && descriptions[i] != "" {
			fmt.Fprintf(&b, "%s\n", descriptions[i])
		}
		if i < len(urls) {
			fmt.Fprintf(&b, "%s\n", urls[i])
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// arxivFeed is the subset of arXiv's Atom export API this tool consumes.
type arxivFeed struct {
	Entries []struct {
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
		ID      string `xml:"id"`
	} `xml:"entry"`
}

// Arxiv queries arXiv's public export API and renders title/summary pairs.
func (c *SearchClient) Arxiv(ctx context.Context, query string) (string, error) {
	apiURL := fmt.Sprintf("https://export.arxiv.org/api/query?search_query=all:%s&max_results=5", url.QueryEscape(query))
	body, err := c.fetch(ctx, apiURL)
	if err != nil {
		return "", fmt.Errorf("arxiv search: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return "", fmt.Errorf("arxiv search: decode: %w", err)
	}
	if len(feed.Entries) == 0 {
		return fmt.Sprintf("no arxiv results for %q", query), nil
	}
	var b strings.Builder
	for i, e := range feed.Entries {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, strings.TrimSpace(e.Title), strings.TrimSpace(e.Summary), e.ID)
	}
	return b.String(), nil
}

func (c *SearchClient) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	return string(data), nil
}
