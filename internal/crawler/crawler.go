package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"museum-discovery/internal/logger"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
)

var (
	// Shared transport; encodings are decoded in OnResponse.
	httpTransport = &http.Transport{
		DisableCompression: true,
	}
)

// CrawlConfig holds configuration for an exhibition listing crawl
type CrawlConfig struct {
	URL            string
	MaxPages       int
	AllowedDomains []string
	// NextSelector points at the pagination link to follow, if any.
	NextSelector string
	Timeout      time.Duration
	Delay        time.Duration
	// Optional JS rendering for listings built client side
	RenderJS         bool
	RenderTimeout    time.Duration
	WaitSelector     string
	NetworkIdleAfter time.Duration
}

// CrawlResult holds the cards scraped by a crawl
type CrawlResult struct {
	URL          string
	Cards        []ExhibitionCard
	PagesCrawled int
}

// NormalizeURL normalizes a URL to a canonical form for duplicate detection
// and stable ids.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	parsed.Fragment = ""

	// Trailing slashes are dropped everywhere except the root
	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path
	parsed.RawPath = ""

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Remove default ports
	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// CrawlExhibitions scrapes exhibition cards from a listing page, following
// pagination up to MaxPages.
func CrawlExhibitions(ctx context.Context, cfg CrawlConfig) (*CrawlResult, error) {
	startURL, err := url.Parse(cfg.URL)
	if err != nil || startURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", cfg.URL)
	}
	if cfg.RenderJS {
		return crawlRendered(ctx, cfg, startURL)
	}

	allowedDomains := cfg.AllowedDomains
	if len(allowedDomains) == 0 {
		host := strings.ToLower(startURL.Hostname())
		bare := strings.TrimPrefix(host, "www.")
		allowedDomains = []string{bare, "www." + bare}
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 5
	}

	c := colly.NewCollector(
		colly.MaxDepth(maxPages),
		colly.AllowedDomains(allowedDomains...),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(httpTransport)
	c.UserAgent = userAgent

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}

	delay := cfg.Delay
	if delay <= 0 {
		delay = time.Second
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
	}); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		result   = &CrawlResult{URL: cfg.URL}
		firstErr error
		seen     = map[string]bool{}
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, br")
	})

	c.OnResponse(func(r *colly.Response) {
		body, err := decompress(r.Body, r.Headers.Get("Content-Encoding"))
		if err != nil {
			logger.Warn("crawler: failed to decompress response", "url", r.Request.URL.String(), "error", err)
			return
		}
		r.Body = UTF8(body, r.Headers.Get("Content-Type"))
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		cards := ParseExhibitionCards(e.DOM, e.Request.URL)

		mu.Lock()
		result.PagesCrawled++
		for _, card := range cards {
			key, err := NormalizeURL(card.URL)
			if err != nil || seen[key] {
				continue
			}
			seen[key] = true
			result.Cards = append(result.Cards, card)
		}
		crawled := result.PagesCrawled
		mu.Unlock()

		if cfg.NextSelector == "" || crawled >= maxPages {
			return
		}
		if next := e.ChildAttr(cfg.NextSelector, "href"); next != "" {
			_ = e.Request.Visit(next)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		logger.Warn("crawler: request failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	})

	if err := c.Visit(startURL.String()); err != nil {
		return nil, fmt.Errorf("visit %s: %w", startURL, err)
	}
	c.Wait()

	if result.PagesCrawled == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func crawlRendered(ctx context.Context, cfg CrawlConfig, base *url.URL) (*CrawlResult, error) {
	timeout := cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	html, err := renderPageHTML(ctx, base.String(), timeout, cfg.WaitSelector, cfg.NetworkIdleAfter)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", base, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, err
	}
	return &CrawlResult{
		URL:          cfg.URL,
		Cards:        ParseExhibitionCards(doc.Selection, base),
		PagesCrawled: 1,
	}, nil
}

// renderPageHTML launches a headless browser, waits for readiness and network idle, then returns HTML
func renderPageHTML(parent context.Context, urlStr string, timeout time.Duration, waitSelector string, networkIdleAfter time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", err
	}

	// Readiness and selector waits are soft failures
	stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second)
	_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))
	cancelStep()

	if waitSelector != "" {
		stepCtx, cancelStep := context.WithTimeout(browserCtx, 15*time.Second)
		_ = chromedp.Run(stepCtx, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
		cancelStep()
	}

	if networkIdleAfter > 0 {
		idleCap := min(networkIdleAfter, 5*time.Second)
		stepCtx, cancelStep := context.WithTimeout(browserCtx, idleCap+time.Second)
		_ = chromedp.Run(stepCtx, waitForNetworkIdle(idleCap))
		cancelStep()
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// waitForNetworkIdle waits until no network requests are in flight for the given duration
func waitForNetworkIdle(d time.Duration) chromedp.ActionFunc {
	js := `(function(waitMs){
      return new Promise((resolve)=>{
        if (!('PerformanceObserver' in window)) {
          setTimeout(resolve, waitMs);
          return;
        }
        let last = Date.now();
        const obs = new PerformanceObserver(()=>{ last = Date.now(); });
        try { obs.observe({entryTypes:['resource','navigation']}); } catch(e) {}
        const tick = () => {
          if (Date.now()-last >= waitMs) { try { obs.disconnect(); } catch(e){} resolve(); return; }
          setTimeout(tick, 100);
        };
        tick();
      });
    })(%d);`
	return func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(js, int(d.Milliseconds())), nil, awaitPromise))
	}
}

// awaitPromise makes Evaluate block until the returned promise settles.
func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}
