package ports

import (
	"context"
	"time"

	"ArxivDigest/internal/domain"
)

// PaperSource pulls newly listed papers from upstream providers.
type PaperSource interface {
	FetchNew(ctx context.Context, day time.Time) ([]domain.Paper, error)
}

// Scorer rates a paper against the user's stated interests with an integer
// relevance score. An empty interest yields 0 without any external call.
type Scorer interface {
	Score(ctx context.Context, paper domain.Paper, interest string) (int, error)
}

// Summarizer produces a chat-sized prose summary in the target language.
type Summarizer interface {
	Summarize(ctx context.Context, paper domain.Paper, language string) (string, error)
}

// Translator renders a paper title in the target language.
type Translator interface {
	TranslateTitle(ctx context.Context, title, language string) (string, error)
}

// Notifier delivers finished digests to a group-chat webhook.
type Notifier interface {
	PublishDigest(ctx context.Context, digest domain.Digest) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
