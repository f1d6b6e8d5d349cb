package domain

import "time"

// Paper is the metadata of one newly listed submission, immutable once fetched.
type Paper struct {
	ID          string
	Title       string
	Abstract    string
	Authors     string
	URL         string
	Source      string
	PublishedAt time.Time
}

// Review carries the scoring and summarization produced on top of a Paper.
type Review struct {
	Paper           Paper
	Score           int
	Summary         string
	TranslatedTitle string
}

// Stage identifies the pipeline step at which a paper failed.
type Stage string

const (
	StageScoring     Stage = "scoring"
	StageSummarizing Stage = "summarizing"
)

// StageFailure records a paper excluded from the digest after its retry budget
// ran out. Failures are reported alongside the digest, never dropped silently.
type StageFailure struct {
	PaperID string
	Title   string
	Stage   Stage
	Err     error
}

// Digest is the ordered result handed to the publisher. Papers are sorted by
// descending score; ties keep the original fetch order.
type Digest struct {
	Category    string
	GeneratedAt time.Time
	Papers      []Review
	Failures    []StageFailure
}
