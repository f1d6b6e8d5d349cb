package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/scanner"
)

const arxivBaseURL = "https://arxiv.org"

// maxAuthors beyond which the list is shortened to "A, B, et al.".
const maxAuthors = 3

// ArxivScanner crawls "new submissions" listing pages of arXiv categories.
type ArxivScanner struct {
	client   *http.Client
	pageSize int
}

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArxivScanner{client: client, pageSize: 200}
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan walks each category listing and returns all newly listed papers.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	day := req.Day.UTC().Truncate(24 * time.Hour)
	results := make([]domain.Paper, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		skip := 0
		for {
			pageURL, err := buildPageURL(cat.URL, skip, a.pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			doc, err := a.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			papers, processed := extractPapers(doc, req.SiteName, cat.Name, day)
			for _, paper := range papers {
				if _, ok := seen[paper.ID]; ok {
					continue
				}
				seen[paper.ID] = struct{}{}
				results = append(results, paper)
			}

			if processed < a.pageSize {
				break
			}
			skip += a.pageSize
		}
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ArxivDigest/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractPapers(doc *goquery.Document, siteName, category string, day time.Time) ([]domain.Paper, int) {
	var (
		collected []domain.Paper
		processed int
	)

	doc.Find("dl > dt").Each(func(i int, dt *goquery.Selection) {
		processed++

		paper, ok := parseEntry(dt, dt.Next(), siteName, category)
		if !ok {
			return
		}
		paper.PublishedAt = day
		collected = append(collected, paper)
	})

	return collected, processed
}

func parseEntry(dt, dd *goquery.Selection, siteName, category string) (domain.Paper, bool) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")
	if href == "" {
		return domain.Paper{}, false
	}

	id := strings.TrimPrefix(href, "/abs/")
	if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
		id = id[idx+len("/abs/"):]
	}

	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}
	href = strings.Replace(href, "http://", "https://", 1)

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))

	source := siteName
	if category != "" {
		source = fmt.Sprintf("%s/%s", siteName, category)
	}

	paper := domain.Paper{
		ID:       id,
		Title:    title,
		Abstract: abstract,
		Authors:  parseAuthors(dd),
		URL:      href,
		Source:   source,
	}

	return paper, true
}

func parseAuthors(dd *goquery.Selection) string {
	var names []string
	dd.Find(".list-authors a").Each(func(i int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			names = append(names, name)
		}
	})

	if len(names) == 0 {
		raw := strings.TrimSpace(dd.Find(".list-authors").First().Text())
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "Authors:"))
		for _, part := range strings.Split(raw, ",") {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
	}

	if len(names) > maxAuthors {
		names = append(names[:2], "et al.")
	}

	return strings.Join(names, ", ")
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
