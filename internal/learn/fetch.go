package learn

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// Article is one raw piece of external content a fetcher extracts,
// before the evolution proposer turns it into ext_-prefixed rules.
type Article struct {
	SourceURL string
	Title     string
	Body      string
}

// MaxRunSources and MaxRunsPerDay are spec.md §4.E.5's external-learning
// budget: "fetches up to 3 sources per run, max 3 runs per day".
const (
	MaxRunSources = 3
	MaxRunsPerDay = 3
)

// httpClient is the shared client fetchers use; swappable in tests via
// WithHTTPClient.
var httpClient = http.DefaultClient

// FetchAll fetches up to MaxRunSources prioritized sources concurrently,
// bounded via golang.org/x/sync/errgroup — the teacher's go.mod carries
// golang.org/x/sync, used in pkg/parallel for the same bounded-fan-out
// shape, reused here for the external-learning run's concurrency cap. A
// single source's fetch failure does not fail the run; it is recorded on
// that Source's accessibility EMA and excluded from the result slice.
func FetchAll(ctx context.Context, sources []Source) ([]Article, []Source) {
	prioritized := PrioritizeSources(sources)
	if len(prioritized) > MaxRunSources {
		prioritized = prioritized[:MaxRunSources]
	}

	articles := make([][]Article, len(prioritized))
	updated := make([]Source, len(prioritized))
	copy(updated, prioritized)

	g, gctx := errgroup.WithContext(ctx)
	for i := range prioritized {
		i := i
		g.Go(func() error {
			src := prioritized[i]
			fetchCtx, cancel := context.WithTimeout(gctx, src.FetchTimeout())
			defer cancel()
			arts, err := Fetch(fetchCtx, src)
			updated[i].RecordFetch(err == nil)
			if err != nil {
				return nil // per-source failure does not abort the run
			}
			articles[i] = arts
			return nil
		})
	}
	_ = g.Wait() // errors are absorbed per-source above; nothing to propagate

	var out []Article
	for _, a := range articles {
		out = append(out, a...)
	}
	return out, updated
}

// Fetch dispatches to the parser tag's fetcher.
func Fetch(ctx context.Context, src Source) ([]Article, error) {
	switch src.Parser {
	case ParserJuejin, ParserInfoQCN:
		return fetchHTMLFeed(ctx, src.URL, "article, .entry, .item")
	case ParserGitHubTrendingHTML:
		return fetchHTMLFeed(ctx, src.URL, "article.Box-row")
	case ParserRSSGeneric:
		return fetchRSS(ctx, src.URL)
	case ParserHNAlgolia:
		return fetchHNAlgolia(ctx, src.URL)
	default:
		return nil, fmt.Errorf("unknown parser tag %q", src.Parser)
	}
}

// fetchHTMLFeed is the goquery-based DOM-scraping path for juejin,
// infoq_cn, and github_trending_html — three of the five closed parser
// tags share the same "select matching nodes, pull title text" shape.
func fetchHTMLFeed(ctx context.Context, url, selector string) ([]Article, error) {
	body, err := httpGet(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var articles []Article
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("a, h1, h2, h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(sel.Text())
		}
		if title == "" {
			return
		}
		articles = append(articles, Article{SourceURL: url, Title: title, Body: strings.TrimSpace(sel.Text())})
	})
	return articles, nil
}

// rssFeed/rssItem mirror the minimal RSS 2.0 shape fetchRSS needs.
// stdlib encoding/xml is used for this one parser: no ecosystem RSS
// parser appears anywhere in the corpus (see DESIGN.md).
type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
}

func fetchRSS(ctx context.Context, url string) ([]Article, error) {
	body, err := httpGet(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read rss body: %w", err)
	}
	var feed rssFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}
	articles := make([]Article, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		articles = append(articles, Article{SourceURL: item.Link, Title: item.Title, Body: item.Description})
	}
	return articles, nil
}

// hnAlgoliaResponse is the subset of Algolia's Hacker News search API
// response fetchHNAlgolia needs.
type hnAlgoliaResponse struct {
	Hits []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		StoryText string `json:"story_text"`
	} `json:"hits"`
}

func fetchHNAlgolia(ctx context.Context, url string) ([]Article, error) {
	body, err := httpGet(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp hnAlgoliaResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode hn algolia response: %w", err)
	}
	articles := make([]Article, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		articles = append(articles, Article{SourceURL: h.URL, Title: h.Title, Body: h.StoryText})
	}
	return articles, nil
}

func httpGet(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
