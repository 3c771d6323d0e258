package reviews

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/metrics"
	"github.com/gradelens/backend/pkg/circuitbreaker"
	"github.com/gradelens/backend/pkg/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Fetcher retrieves review pages for professors missing from the cache.
// Fetches run in bounded batches with a short pause between batches, so a
// turn that resolves many instructors cannot hammer the review site.
type Fetcher struct {
	store       Store
	baseURL     string
	httpClient  *http.Client
	concurrency int
	batchDelay  time.Duration
	cb          *circuitbreaker.CircuitBreaker

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

type FetcherConfig struct {
	BaseURL     string
	Concurrency int
	Timeout     time.Duration
	BatchDelay  time.Duration
}

func NewFetcher(store Store, cfg FetcherConfig) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}

	return &Fetcher{
		store:       store,
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		concurrency: cfg.Concurrency,
		batchDelay:  cfg.BatchDelay,
		cb: circuitbreaker.New("reviews", circuitbreaker.Config{
			MaxRequests:      3,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 8,
			SuccessThreshold: 2,
			Logger:           logger.GetLogger(),
		}),
		inflight: make(map[string]chan struct{}),
	}
}

// FetchAll returns review records for every id, merging cache hits with
// freshly scraped pages. A parse or network failure for one id yields an
// error marker for that id only; the rest of the batch proceeds.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string) map[string]*ProfessorReview {
	results := make(map[string]*ProfessorReview, len(ids))

	misses := make([]string, 0, len(ids))
	for _, id := range dedupe(ids) {
		if review, ok := f.store.Get(ctx, id); ok {
			metrics.CacheHits.WithLabelValues("reviews").Inc()
			results[id] = review
			continue
		}
		metrics.CacheMisses.WithLabelValues("reviews").Inc()
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return results
	}

	logger.Info("Fetching professor reviews",
		zap.Int("cached", len(results)),
		zap.Int("to_fetch", len(misses)),
	)

	for start := 0; start < len(misses); start += f.concurrency {
		end := start + f.concurrency
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		var wg sync.WaitGroup
		var mu sync.Mutex

		for _, id := range batch {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				review := f.fetchOne(ctx, id)
				mu.Lock()
				results[id] = review
				mu.Unlock()
			}(id)
		}

		wg.Wait()

		if end < len(misses) && f.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(f.batchDelay):
			}
		}
	}

	return results
}

// fetchOne scrapes a single review page, de-duplicating against an
// identical fetch already in flight on another turn.
func (f *Fetcher) fetchOne(ctx context.Context, id string) *ProfessorReview {
	if done, leader := f.claim(id); !leader {
		select {
		case <-done:
		case <-ctx.Done():
			return &ProfessorReview{ID: id, FetchError: ctx.Err().Error()}
		}
		if review, ok := f.store.Get(ctx, id); ok {
			return review
		}
		return &ProfessorReview{ID: id, FetchError: "concurrent fetch yielded no record"}
	}
	defer f.release(id)

	var review *ProfessorReview
	err := f.cb.Execute(ctx, func() error {
		var scrapeErr error
		review, scrapeErr = f.scrape(ctx, id)
		return scrapeErr
	})
	if err != nil {
		logger.Warn("Review scrape failed",
			zap.String("professor_id", id),
			zap.Error(err),
		)
		metrics.ScrapesTotal.WithLabelValues("error").Inc()
		review = &ProfessorReview{ID: id, FetchError: err.Error()}
	} else {
		metrics.ScrapesTotal.WithLabelValues("ok").Inc()
	}

	f.store.Put(ctx, id, review)
	return review
}

func (f *Fetcher) claim(id string) (chan struct{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if done, ok := f.inflight[id]; ok {
		return done, false
	}
	done := make(chan struct{})
	f.inflight[id] = done
	return done, true
}

func (f *Fetcher) release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if done, ok := f.inflight[id]; ok {
		close(done)
		delete(f.inflight, id)
	}
}

func (f *Fetcher) scrape(ctx context.Context, id string) (*ProfessorReview, error) {
	url := fmt.Sprintf("%s/%s", f.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch review page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("review page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read review page: %w", err)
	}

	return parseReviewPage(string(body), id)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
