package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/resilience"
	"ArxivDigest/internal/ports"
)

// Notifier posts digests to a group-chat webhook as plain-text messages,
// splitting large digests into batches so each message stays chat-sized.
type Notifier struct {
	url           string
	maxPerMessage int
	client        *http.Client
	exec          *resilience.Executor
	logger        *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook URL and batch size.
func NewNotifier(url string, maxPerMessage int, exec *resilience.Executor, logger *slog.Logger) *Notifier {
	if maxPerMessage <= 0 {
		maxPerMessage = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:           url,
		maxPerMessage: maxPerMessage,
		client:        &http.Client{Timeout: 15 * time.Second},
		exec:          exec,
		logger:        logger,
	}
}

// PublishDigest sends the digest in one or more webhook messages. The failure
// note travels with the last batch so skipped papers are always visible.
func (n *Notifier) PublishDigest(ctx context.Context, digest domain.Digest) error {
	if n.url == "" {
		return fmt.Errorf("webhook notifier misconfigured")
	}

	batches := splitReviews(digest.Papers, n.maxPerMessage)
	if len(batches) == 0 && len(digest.Failures) > 0 {
		batches = [][]domain.Review{nil}
	}

	for i, batch := range batches {
		suffix := ""
		if len(batches) > 1 {
			suffix = fmt.Sprintf(" (%d/%d)", i+1, len(batches))
		}

		text := buildMessage(digest, batch, suffix, i == len(batches)-1)
		if err := n.post(ctx, text); err != nil {
			return fmt.Errorf("publish batch %d/%d: %w", i+1, len(batches), err)
		}
		n.logger.Info("digest batch published", "batch", i+1, "batches", len(batches), "papers", len(batch))
	}

	return nil
}

func (n *Notifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	send := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(body))}
		}
		return nil
	}

	if n.exec == nil {
		return send(ctx)
	}
	return n.exec.Execute(ctx, "publish", send, classifyPublishError)
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("webhook status: %s", e.status)
	}
	return fmt.Sprintf("webhook status: %s: %s", e.status, e.body)
}

func classifyPublishError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var sErr *statusError
	if errors.As(err, &sErr) {
		retryable := sErr.code >= http.StatusInternalServerError || sErr.code == http.StatusTooManyRequests
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func splitReviews(reviews []domain.Review, size int) [][]domain.Review {
	if len(reviews) == 0 {
		return nil
	}

	batches := make([][]domain.Review, 0, (len(reviews)+size-1)/size)
	for start := 0; start < len(reviews); start += size {
		end := start + size
		if end > len(reviews) {
			end = len(reviews)
		}
		batches = append(batches, reviews[start:end])
	}
	return batches
}

func buildMessage(digest domain.Digest, batch []domain.Review, suffix string, last bool) string {
	var sb strings.Builder

	day := digest.GeneratedAt.Format("2006-01-02")
	fmt.Fprintf(&sb, "%s arXiv papers summary for %s%s:\n\n", day, digest.Category, suffix)

	for _, review := range batch {
		fmt.Fprintf(&sb, "Title: %s\n", review.Paper.Title)
		if review.TranslatedTitle != "" && review.TranslatedTitle != review.Paper.Title {
			fmt.Fprintf(&sb, "%s\n", review.TranslatedTitle)
		}
		if review.Paper.Authors != "" {
			fmt.Fprintf(&sb, "Authors: %s\n", review.Paper.Authors)
		}
		fmt.Fprintf(&sb, "URL: %s\n", review.Paper.URL)
		fmt.Fprintf(&sb, "Relevance: %s\n", relevanceLabel(review.Score))
		fmt.Fprintf(&sb, "Summary: %s\n\n", review.Summary)
	}

	if last && len(digest.Failures) > 0 {
		fmt.Fprintf(&sb, "Skipped %d paper(s): %s\n", len(digest.Failures), formatFailures(digest.Failures))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func relevanceLabel(score int) string {
	switch {
	case score <= 0:
		return "Low"
	case score == 1:
		return "Medium"
	default:
		return "High"
	}
}

func formatFailures(failures []domain.StageFailure) string {
	parts := make([]string, 0, len(failures))
	for _, failure := range failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", failure.PaperID, failure.Stage))
	}
	return strings.Join(parts, ", ")
}
