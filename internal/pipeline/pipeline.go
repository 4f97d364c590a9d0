// Package pipeline drives a single work item through render, sanitize,
// transform and persist, retrying whole attempts with exponential backoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/clock/system"
	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/metrics"
)

// Stage names used in logs, metrics and errors.
const (
	StageRender    = "render"
	StageSanitize  = "sanitize"
	StageTransform = "transform"
	StagePersist   = "persist"
)

// Deps are the collaborators a Pipeline needs.
type Deps struct {
	Renderer    extract.Renderer
	Sanitizer   extract.Sanitizer
	Transformer extract.Transformer
	Persister   extract.Persister
	Policy      RetryPolicy
	Sleeper     extract.Sleeper
	Clock       extract.Clock
}

// Pipeline implements the per-item state machine.
type Pipeline struct {
	deps          Deps
	renderTimeout time.Duration
	logger        *zap.Logger
}

// New constructs a Pipeline. Policy, Sleeper and Clock fall back to three
// attempts with a one second base and the system clock.
func New(deps Deps, renderTimeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Policy == nil {
		deps.Policy = NewExponentialRetryPolicy(3, time.Second)
	}
	if deps.Sleeper == nil || deps.Clock == nil {
		sys := system.New()
		if deps.Sleeper == nil {
			deps.Sleeper = sys
		}
		if deps.Clock == nil {
			deps.Clock = sys
		}
	}
	return &Pipeline{deps: deps, renderTimeout: renderTimeout, logger: logger}
}

// Run processes item to a terminal state. It never panics and always returns
// exactly one result.
func (p *Pipeline) Run(ctx context.Context, item extract.WorkItem) (res extract.ItemResult) {
	start := p.deps.Clock.Now()
	logger := p.logger.With(zap.String("label", item.Label), zap.String("url", item.URL))
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			err := &extract.Error{Kind: extract.KindInternal, Stage: "pipeline", Err: fmt.Errorf("panic: %v", r)}
			logger.Error("pipeline panicked", zap.Any("panic", r), zap.Int("attempt", attempts), zap.Stack("stack"))
			res = extract.Failed(item, extract.StateExhausted, attempts, err)
		}
		res.Duration = p.deps.Clock.Now().Sub(start)
		metrics.ObserveItem(string(res.State))
	}()

	if err := item.Validate(); err != nil {
		logger.Error("rejecting work item", zap.Error(err))
		return extract.Failed(item, extract.StateRejected, 0, err)
	}

	maxAttempts := p.deps.Policy.MaxAttempts()
	for attempt := 1; ; attempt++ {
		attempts = attempt
		logger.Debug("attempt starting", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))

		art, err := p.attempt(ctx, item)
		if err == nil {
			metrics.ObserveAttempt(true, "")
			logger.Info("item succeeded",
				zap.Int("attempt", attempt),
				zap.String("path", art.Path),
				zap.Int("bytes", art.Bytes),
			)
			return extract.Succeeded(item, attempt, art)
		}

		stage := extract.StageOf(err)
		metrics.ObserveAttempt(false, stage)
		logger.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("stage", stage),
			zap.String("kind", string(extract.KindOf(err))),
			zap.Error(err),
		)

		if !p.deps.Policy.ShouldRetry(err, attempt) {
			logger.Error("item exhausted", zap.Int("attempts", attempt), zap.Error(err))
			return extract.Failed(item, extract.StateExhausted, attempt, err)
		}

		wait := p.deps.Policy.Backoff(attempt)
		metrics.ObserveBackoff(wait)
		logger.Info("backing off", zap.Int("attempt", attempt), zap.Duration("wait", wait))
		if serr := p.deps.Sleeper.Sleep(ctx, wait); serr != nil {
			err = errors.Join(err, serr)
			logger.Error("item abandoned during backoff", zap.Int("attempts", attempt), zap.Error(serr))
			return extract.Failed(item, extract.StateExhausted, attempt, err)
		}
	}
}

// attempt runs every stage once. Nothing is carried over between attempts.
func (p *Pipeline) attempt(ctx context.Context, item extract.WorkItem) (extract.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return extract.Artifact{}, extract.FetchError(err)
	}

	begin := p.deps.Clock.Now()
	raw, err := p.deps.Renderer.Render(ctx, item.URL, p.renderTimeout)
	metrics.ObserveStage(StageRender, p.deps.Clock.Now().Sub(begin))
	if err != nil {
		if extract.KindOf(err) != extract.KindFetch {
			err = extract.FetchError(err)
		}
		return extract.Artifact{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return extract.Artifact{}, extract.FetchError(extract.ErrEmptyRender)
	}
	metrics.ObserveRender(item.URL, len(raw))

	begin = p.deps.Clock.Now()
	clean := p.deps.Sanitizer.Sanitize(raw)
	metrics.ObserveStage(StageSanitize, p.deps.Clock.Now().Sub(begin))

	begin = p.deps.Clock.Now()
	text := p.deps.Transformer.Transform(clean)
	metrics.ObserveStage(StageTransform, p.deps.Clock.Now().Sub(begin))

	begin = p.deps.Clock.Now()
	art, err := p.deps.Persister.Persist(ctx, item.Label, text)
	metrics.ObserveStage(StagePersist, p.deps.Clock.Now().Sub(begin))
	if err != nil {
		if extract.KindOf(err) != extract.KindIO {
			err = extract.IOError(err)
		}
		return extract.Artifact{}, err
	}
	return art, nil
}
