package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ArxivDigest/internal/domain"
	"ArxivDigest/internal/infrastructure/resilience"
	"ArxivDigest/internal/ports"
)

const defaultRequestTimeout = 60 * time.Second

// CallObserver receives the outcome of every completion attempt.
type CallObserver interface {
	ObserveCompletion(operation string, duration time.Duration, err error)
}

// Options configures the completion client.
type Options struct {
	Endpoint          string
	Model             string
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerMinute int
	Executor          *resilience.Executor
	Observer          CallObserver
	Logger            *slog.Logger
}

// Client talks to an OpenAI-compatible chat-completions API. It implements the
// scoring, summarization, and title-translation ports. All calls share one
// outbound rate limiter, and every call runs under the resilience executor.
type Client struct {
	endpoint string
	model    string
	apiKey   string

	httpClient *http.Client
	limiter    *rate.Limiter
	exec       *resilience.Executor
	timeout    time.Duration
	observer   CallObserver
	logger     *slog.Logger
}

var _ ports.Scorer = (*Client)(nil)
var _ ports.Summarizer = (*Client)(nil)
var _ ports.Translator = (*Client)(nil)

// NewClient builds a client from options; executor is required, the rest have
// workable defaults.
func NewClient(opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exec := opts.Executor
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}

	return &Client{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		model:      opts.Model,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		exec:       exec,
		timeout:    timeout,
		observer:   opts.Observer,
		logger:     logger,
	}
}

// Score rates the paper against the interest with a single integer. The empty
// interest short-circuits to 0 without touching the network. Responses that do
// not parse as an integer are retried, never silently treated as 0.
func (c *Client) Score(ctx context.Context, paper domain.Paper, interest string) (int, error) {
	if strings.TrimSpace(interest) == "" {
		return 0, nil
	}

	prompt := buildScorePrompt(paper, interest)

	var score int
	err := c.exec.Execute(ctx, "score", func(ctx context.Context) error {
		text, err := c.complete(ctx, "score", prompt, 0, 8)
		if err != nil {
			return err
		}
		parsed, convErr := strconv.Atoi(strings.TrimSpace(text))
		if convErr != nil {
			return &ScoreParseError{Response: text}
		}
		score = parsed
		return nil
	}, classifyCompletionError)
	if err != nil {
		return 0, fmt.Errorf("score paper %s: %w", paper.ID, err)
	}

	return score, nil
}

// Summarize requests a short prose summary of the abstract in the target
// language ("English" when empty).
func (c *Client) Summarize(ctx context.Context, paper domain.Paper, language string) (string, error) {
	prompt := buildSummaryPrompt(paper, orEnglish(language))

	var summary string
	err := c.exec.Execute(ctx, "summarize", func(ctx context.Context) error {
		text, err := c.complete(ctx, "summarize", prompt, 0.7, 0)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return &HTTPStatusError{Operation: "summarize", StatusCode: http.StatusInternalServerError, Status: "empty completion"}
		}
		summary = strings.TrimSpace(text)
		return nil
	}, classifyCompletionError)
	if err != nil {
		return "", fmt.Errorf("summarize paper %s: %w", paper.ID, err)
	}

	return summary, nil
}

// TranslateTitle renders the title in the target language.
func (c *Client) TranslateTitle(ctx context.Context, title, language string) (string, error) {
	prompt := fmt.Sprintf("Translate the following title of article to %s, only respond with the translated title: %s", orEnglish(language), title)

	var translated string
	err := c.exec.Execute(ctx, "translate", func(ctx context.Context) error {
		text, err := c.complete(ctx, "translate", prompt, 0, 0)
		if err != nil {
			return err
		}
		translated = strings.TrimSpace(text)
		return nil
	}, classifyCompletionError)
	if err != nil {
		return "", fmt.Errorf("translate title: %w", err)
	}

	return translated, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete performs one attempt against the API; retries live in the executor.
func (c *Client) complete(ctx context.Context, operation, prompt string, temperature float64, maxTokens int) (text string, err error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("completion client misconfigured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveCompletion(operation, time.Since(start), err)
		}
	}()

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", operation, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(payload),
		}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode %s response: %w", operation, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion %s: %s: %s", operation, parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion %s: empty choices", operation)
	}

	return parsed.Choices[0].Message.Content, nil
}

func buildScorePrompt(paper domain.Paper, interest string) string {
	return fmt.Sprintf(`Given the following research paper's title and abstract, and a (list of) user's area of interest,
rate the relevance of the paper to the user's interest.
Respond with only a single integer:
0 for Low relevance to all of the user's interests,
1 for Medium relevance to any of the user's interests,
2 for High relevance to any of the user's interests.

User's Interest: %s

Paper Title: %s
Paper Abstract: %s

Relevance Score (0, 1, or 2):`, interest, paper.Title, paper.Abstract)
}

func buildSummaryPrompt(paper domain.Paper, language string) string {
	return fmt.Sprintf(`Summarize the following research paper. Provide the most important information in up to 3 sentences. Respond in %s.

Title: %s
Abstract: %s`, language, paper.Title, paper.Abstract)
}

func orEnglish(language string) string {
	if strings.TrimSpace(language) == "" {
		return "English"
	}
	return language
}
