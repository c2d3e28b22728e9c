// Package assistant answers student messages. It updates the student's
// onboarding milestones from what they say, retrieves the best brochure
// passage for the question, and composes a reply from the generator
// with a fixed fallback chain so every message gets a non-empty answer.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/n1dhiparate/admit-assist/internal/llm"
	"github.com/n1dhiparate/admit-assist/internal/metrics"
	"github.com/n1dhiparate/admit-assist/internal/prompts"
	"github.com/n1dhiparate/admit-assist/internal/retrieval"
)

// Strategy names the composer state that produced a reply.
type Strategy string

// Composer states, in order of attempt.
const (
	// StrategyGrounded is a generated answer constrained to the passage.
	StrategyGrounded Strategy = "grounded"
	// StrategyUngrounded is a generated answer with no passage.
	StrategyUngrounded Strategy = "ungrounded"
	// StrategyRetrieved is the passage itself, used when generation fails.
	StrategyRetrieved Strategy = "retrieved"
	// StrategyNotice is the fixed notice for a failure with no passage.
	StrategyNotice Strategy = "notice"
)

// SourceBrochure labels replies backed by the brochure.
const SourceBrochure = "Admission Brochure"

// NoticeText is the reply when generation fails and nothing was retrieved.
const NoticeText = "I do not have official information about this in the brochure."

var errNoGenerator = errors.New("no generator configured")

// Answer is a composed reply.
type Answer struct {
	Reply    string
	Source   string
	Strategy Strategy
	// Err is the generation error behind a fallback, nil otherwise.
	Err error
}

// Composer runs the generator once per question and falls back to the
// retrieved passage or the notice when it fails.
type Composer struct {
	generator llm.Generator
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewComposer creates a composer. A positive timeout bounds each
// generation call. gen may be nil, in which case every answer is a
// fallback.
func NewComposer(gen llm.Generator, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		generator: gen,
		timeout:   timeout,
		metrics:   m,
		logger:    logger,
	}
}

// Compose answers question using the retrieval result.
func (c *Composer) Compose(ctx context.Context, question string, r retrieval.Result) Answer {
	prompt := prompts.Ungrounded(question)
	if r.Found() {
		prompt = prompts.Grounded(r.Text(), question)
	}

	text, err := c.generate(ctx, prompt)
	switch {
	case err == nil && r.Found():
		return Answer{Reply: text, Source: SourceBrochure, Strategy: StrategyGrounded}
	case err == nil:
		return Answer{Reply: text, Strategy: StrategyUngrounded}
	case r.Found():
		c.logger.Warn("generation failed, replying with brochure passage",
			"strategy", StrategyRetrieved,
			"passage", r.Passage.Index,
			"error", err,
		)
		return Answer{Reply: r.Text(), Source: SourceBrochure, Strategy: StrategyRetrieved, Err: err}
	default:
		c.logger.Warn("generation failed, replying with notice",
			"strategy", StrategyNotice,
			"error", err,
		)
		return Answer{Reply: NoticeText, Strategy: StrategyNotice, Err: err}
	}
}

func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	if c.generator == nil {
		return "", errNoGenerator
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err == nil {
		// A generator that ignores ctx can still return after the deadline.
		err = ctx.Err()
	}
	c.metrics.ObserveGeneration(start, err)
	if err != nil {
		return "", err
	}
	return text, nil
}
