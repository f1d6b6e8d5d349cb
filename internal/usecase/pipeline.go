package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/observability/metrics"
	"ArxivDigest/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.PaperSource
	Scorer     ports.Scorer
	Summarizer ports.Summarizer
	Translator ports.Translator
	Notifier   ports.Notifier
	Metrics    *metrics.PipelineMetrics
	Logger     *slog.Logger

	Category      string
	Interest      string
	FilterLevel   domain.FilterLevel
	Language      string
	MaxConcurrent int
}

// Pipeline turns a day's fetched papers into a scored, filtered, summarized
// digest. A paper that exhausts its retry budget at one stage is excluded and
// reported; it never aborts the run.
type Pipeline struct {
	source     ports.PaperSource
	scorer     ports.Scorer
	summarizer ports.Summarizer
	translator ports.Translator
	notifier   ports.Notifier
	metrics    *metrics.PipelineMetrics
	logger     *slog.Logger

	category      string
	interest      string
	filterLevel   domain.FilterLevel
	language      string
	maxConcurrent int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrent := deps.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	filterLevel := deps.FilterLevel
	if filterLevel == "" {
		filterLevel = domain.FilterNone
	}

	return &Pipeline{
		source:        deps.Source,
		scorer:        deps.Scorer,
		summarizer:    deps.Summarizer,
		translator:    deps.Translator,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		logger:        logger,
		category:      deps.Category,
		interest:      strings.TrimSpace(deps.Interest),
		filterLevel:   filterLevel,
		language:      deps.Language,
		maxConcurrent: maxConcurrent,
	}
}

// ProcessDay fetches new listings, builds the digest, and publishes it.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) error {
	if p.source == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		p.metrics.ObserveRun(time.Since(start))
	}()

	papers, err := p.source.FetchNew(ctx, day)
	if err != nil {
		return fmt.Errorf("fetch new listings: %w", err)
	}
	p.logger.Info("fetched papers", "count", len(papers))

	digest := p.BuildDigest(ctx, papers, day)
	if len(digest.Papers) == 0 && len(digest.Failures) == 0 {
		p.logger.Warn("no papers to publish")
		return nil
	}

	if p.notifier == nil {
		p.logger.Info("no notifier configured, digest not published", "papers", len(digest.Papers))
		return nil
	}

	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}

	p.logger.Info("digest published", "papers", len(digest.Papers), "skipped", len(digest.Failures))
	return nil
}

// BuildDigest runs score, sort, filter, and summarize over the fetched papers.
// The returned digest is ordered by descending score, ties keeping fetch order.
func (p *Pipeline) BuildDigest(ctx context.Context, papers []domain.Paper, day time.Time) domain.Digest {
	digest := domain.Digest{
		Category:    p.category,
		GeneratedAt: day,
	}

	reviews, failures := p.scorePapers(ctx, papers)
	digest.Failures = failures

	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].Score > reviews[j].Score
	})

	kept := p.effectiveFilterLevel().Apply(reviews)
	p.metrics.AddPapers("filtered", len(reviews)-len(kept))

	summarized, sumFailures := p.summarizePapers(ctx, kept)
	digest.Papers = summarized
	digest.Failures = append(digest.Failures, sumFailures...)

	p.metrics.AddPapers("delivered", len(digest.Papers))
	for _, failure := range digest.Failures {
		p.metrics.AddStageFailure(string(failure.Stage))
		p.logger.Warn("paper excluded from digest",
			"paper", failure.PaperID,
			"stage", failure.Stage,
			"error", failure.Err,
		)
	}

	return digest
}

// scorePapers assigns a relevance score to each paper. The empty interest is
// the fast path: every paper scores 0 and no scorer call is made.
func (p *Pipeline) scorePapers(ctx context.Context, papers []domain.Paper) ([]domain.Review, []domain.StageFailure) {
	reviews := make([]domain.Review, 0, len(papers))

	if p.interest == "" || p.scorer == nil {
		for _, paper := range papers {
			reviews = append(reviews, domain.Review{Paper: paper})
		}
		return reviews, nil
	}

	scores := make([]int, len(papers))
	errs := make([]error, len(papers))
	p.forEach(ctx, len(papers), func(i int) {
		scores[i], errs[i] = p.scorer.Score(ctx, papers[i], p.interest)
	})

	var failures []domain.StageFailure
	for i, paper := range papers {
		if errs[i] != nil {
			failures = append(failures, domain.StageFailure{
				PaperID: paper.ID,
				Title:   paper.Title,
				Stage:   domain.StageScoring,
				Err:     errs[i],
			})
			continue
		}
		reviews = append(reviews, domain.Review{Paper: paper, Score: scores[i]})
	}

	return reviews, failures
}

// summarizePapers fills in summaries (and translated titles) for the papers
// that survived filtering. Each goroutine owns exactly one review slot.
func (p *Pipeline) summarizePapers(ctx context.Context, reviews []domain.Review) ([]domain.Review, []domain.StageFailure) {
	if p.summarizer == nil || len(reviews) == 0 {
		return reviews, nil
	}

	errs := make([]error, len(reviews))
	p.forEach(ctx, len(reviews), func(i int) {
		summary, err := p.summarizer.Summarize(ctx, reviews[i].Paper, p.language)
		if err != nil {
			errs[i] = err
			return
		}
		reviews[i].Summary = summary

		if p.translator == nil || p.language == "" {
			return
		}
		translated, err := p.translator.TranslateTitle(ctx, reviews[i].Paper.Title, p.language)
		if err != nil {
			errs[i] = fmt.Errorf("translate title: %w", err)
			return
		}
		reviews[i].TranslatedTitle = translated
	})

	completed := make([]domain.Review, 0, len(reviews))
	var failures []domain.StageFailure
	for i, review := range reviews {
		if errs[i] != nil {
			failures = append(failures, domain.StageFailure{
				PaperID: review.Paper.ID,
				Title:   review.Paper.Title,
				Stage:   domain.StageSummarizing,
				Err:     errs[i],
			})
			continue
		}
		completed = append(completed, review)
	}

	return completed, failures
}

// effectiveFilterLevel disables filtering when no interest is configured, since
// every score defaults to 0 and thresholds above low would drop everything.
func (p *Pipeline) effectiveFilterLevel() domain.FilterLevel {
	if p.interest == "" && p.filterLevel != domain.FilterNone {
		p.logger.Warn("no user interest configured, skipping relevance filtering", "filter_level", p.filterLevel)
		return domain.FilterNone
	}
	return p.filterLevel
}

// forEach runs fn for every index with at most maxConcurrent goroutines in
// flight. Completion order is unconstrained; ordering is restored by the sort.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(int)) {
	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}

	wg.Wait()
}
