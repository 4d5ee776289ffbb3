// Package crawler collects press releases and news articles from a campaign
// website.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/retry"
	"github.com/khanasif1/twooter/internal/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; twooter-crawler/1.0)"
	maxPageBytes    = 2 << 20
	minContentChars = 100
)

var (
	skipPatterns = []string{
		"javascript:", "mailto:", ".css", ".js", ".jpg", ".jpeg", ".png", ".gif",
		".pdf", ".ico", ".svg", "contact", "about", "privacy", "terms",
		"policies.html", "authors-list.html",
	}
	pathPatterns = []string{
		"/post/", "/news/", "/press/", "/article/", "/story/", "/release/",
		"/update/", "/announcement/", "/20",
	}
	textKeywords = []string{
		"news", "press", "release", "article", "story", "update",
		"announcement", "statement", "campaign",
	}
	containerHints = []string{
		"article", "post", "news", "press", "story", "release", "update", "announcement",
	}

	titleSelectors   = []string{"h1", "h2", ".title", ".headline", ".article-title", ".post-title"}
	contentSelectors = []string{
		"article", `[role="main"]`, ".content", ".article-content", ".post-content",
		".main-content", "main", ".entry-content", ".article-body", ".post-body",
	}
	summarySelectors = []string{".summary", ".excerpt", ".lead", ".intro", ".description", ".abstract"}
	noiseSelectors   = "script, style, nav, header, footer, aside, .navigation, .menu, .sidebar, .comments, .share, .related"

	blankLines = regexp.MustCompile(`\n{3,}`)
	spaces     = regexp.MustCompile(`[ \t]+`)
)

// Article is one extracted press item.
type Article struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// Crawler fetches the site index and the articles it links to.
type Crawler struct {
	client      *http.Client
	index       *url.URL
	maxArticles int
	delay       time.Duration
	sleep       retry.Sleeper
	logger      *logrus.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) { c.client = hc }
}

func WithSleeper(s retry.Sleeper) Option {
	return func(c *Crawler) { c.sleep = s }
}

func New(cfg *config.CrawlerConfig, logger *logrus.Logger, opts ...Option) (*Crawler, error) {
	if strings.TrimSpace(cfg.SiteURL) == "" {
		return nil, fmt.Errorf("crawler site url is required")
	}
	index, err := url.Parse(strings.TrimSpace(cfg.SiteURL))
	if err != nil || index.Host == "" {
		return nil, fmt.Errorf("invalid crawler site url: %q", cfg.SiteURL)
	}

	c := &Crawler{
		client:      &http.Client{Timeout: cfg.Timeout},
		index:       index,
		maxArticles: cfg.MaxArticles,
		delay:       cfg.RequestDelay,
		sleep:       retry.SleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Crawl returns the articles linked from the index page. Individual article
// failures are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context) ([]Article, error) {
	doc, err := c.fetch(ctx, c.index.String())
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}

	links := FindArticleLinks(doc, c.index)
	if c.maxArticles > 0 && len(links) > c.maxArticles {
		links = links[:c.maxArticles]
	}
	c.logger.WithFields(logrus.Fields{"index": c.index.String(), "links": len(links)}).Info("Found article links")

	articles := make([]Article, 0, len(links))
	for i, link := range links {
		if i > 0 && c.delay > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return articles, err
			}
		}

		page, err := c.fetch(ctx, link)
		if err != nil {
			c.logger.WithError(err).WithField("url", link).Warn("Failed to fetch article")
			continue
		}
		a, ok := ExtractArticle(page)
		if !ok {
			c.logger.WithField("url", link).Debug("Page has no usable article")
			continue
		}
		a.URL = link
		articles = append(articles, a)
	}

	return articles, nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, target)
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
}

// FindArticleLinks returns the sorted, de-duplicated same-host links on the
// index page that look like news or press items.
func FindArticleLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})

	consider := func(a *goquery.Selection, inContainer bool) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		abs, ok := resolve(base, href)
		if !ok || !isCandidate(abs, base) {
			return
		}
		lower := strings.ToLower(abs.String())
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if inContainer || utils.ContainsAny(text, textKeywords) || utils.ContainsAny(lower, pathPatterns) {
			seen[abs.String()] = struct{}{}
		}
	}

	doc.Find("article, div[class], section[class]").Each(func(_ int, s *goquery.Selection) {
		class := strings.ToLower(s.AttrOr("class", ""))
		if goquery.NodeName(s) != "article" && !utils.ContainsAny(class, containerHints) {
			return
		}
		s.Find("a[href]").Each(func(_ int, a *goquery.Selection) { consider(a, true) })
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) { consider(a, false) })

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links
}

func resolve(base *url.URL, href string) (*url.URL, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs, abs.Scheme == "http" || abs.Scheme == "https"
}

func isCandidate(u, base *url.URL) bool {
	if !strings.EqualFold(u.Host, base.Host) {
		return false
	}
	lower := strings.ToLower(u.String())
	if utils.ContainsAny(lower, skipPatterns) {
		return false
	}
	p := strings.ToLower(u.Path)
	if p == "" || p == "/" || strings.HasSuffix(p, "/index.html") || strings.HasSuffix(p, "/index") {
		return false
	}
	return u.String() != base.String()
}

// ExtractArticle pulls title, body and summary out of an article page. It
// reports false when the page has no title or too little text.
func ExtractArticle(doc *goquery.Document) (Article, bool) {
	title := extractTitle(doc)
	doc.Find(noiseSelectors).Remove()
	content := extractContent(doc)
	if title == "" || len([]rune(content)) < minContentChars {
		return Article{}, false
	}
	return Article{Title: title, Content: content, Summary: extractSummary(doc, content)}, true
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); len(t) > 3 {
			return t
		}
	}
	t := strings.TrimSpace(doc.Find("title").First().Text())
	if i := strings.Index(t, "|"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if len(t) > 3 {
		return t
	}
	return ""
}

func blockText(s *goquery.Selection) string {
	var parts []string
	s.Find("p, li, h2, h3, h4, blockquote").Each(func(_ int, el *goquery.Selection) {
		if t := strings.TrimSpace(el.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(s.Text())
	}
	return strings.Join(parts, "\n")
}

func extractContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if t := blockText(el); len([]rune(t)) > 200 {
			return clean(t)
		}
	}

	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); len(t) > 30 {
			parts = append(parts, t)
		}
	})
	return clean(strings.Join(parts, "\n\n"))
}

func extractSummary(doc *goquery.Document, content string) string {
	for _, sel := range summarySelectors {
		t := strings.TrimSpace(doc.Find(sel).First().Text())
		if n := len([]rune(t)); n >= 50 && n <= 500 {
			return t
		}
	}

	var summary string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := strings.TrimSpace(p.Text())
		if n := len([]rune(t)); n >= 100 && n <= 400 {
			summary = t
			return false
		}
		return true
	})
	if summary != "" {
		return summary
	}

	sentences := strings.SplitN(content, ". ", 4)
	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	summary = strings.Join(sentences, ". ")
	if !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	if r := []rune(summary); len(r) > 400 {
		summary = string(r[:400]) + "..."
	}
	return summary
}

func clean(s string) string {
	s = spaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
