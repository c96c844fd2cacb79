package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Context pairs the cancellation context with the tick scratchpad so stage
// signatures stay small
type Context struct {
	Ctx  context.Context
	Tick *TickContext
}

// Outcome is the caller-visible result of one pipeline run
type Outcome struct {
	Status   string         `json:"status"` // completed or failed
	Kind     string         `json:"kind"`   // success, skip, exit, error
	Stage    string         `json:"stage,omitempty"`
	Decision string         `json:"decision,omitempty"`
	Reason   string         `json:"reason"`
	Data     map[string]any `json:"data,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Pipeline runs an ordered list of stages over one tick
type Pipeline struct {
	stages   []Stage
	deadline time.Duration
	logger   zerolog.Logger
}

// DefaultTickDeadline bounds a whole pipeline run
const DefaultTickDeadline = 3 * time.Minute

// New assembles a pipeline from stages
func New(logger zerolog.Logger, deadline time.Duration, stages ...Stage) *Pipeline {
	if deadline <= 0 {
		deadline = DefaultTickDeadline
	}
	return &Pipeline{stages: stages, deadline: deadline, logger: logger.With().Str("component", "pipeline").Logger()}
}

// Run executes the stages in order for one tick. Stage panics are converted
// through the stage's error handler; they never escape.
func (p *Pipeline) Run(ctx context.Context, tick *TickContext) *Outcome {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	sc := &Context{Ctx: runCtx, Tick: tick}
	for _, stage := range p.stages {
		if err := runCtx.Err(); err != nil {
			return p.outcome(start, stage.Name(), Stop(fmt.Sprintf("tick deadline: %v", err)), tick)
		}
		if !stage.PreExecute(sc) {
			p.logger.Debug().Str("stage", stage.Name()).Msg("stage skipped by precondition")
			continue
		}

		res := p.execute(sc, stage)
		res = stage.PostExecute(sc, res)

		p.logger.Info().
			Str("stage", stage.Name()).
			Str("action", string(res.Action)).
			Bool("success", res.Success).
			Str("ticker", tick.Ticker).
			Msg(res.Message)

		switch {
		case !res.Success, res.Action == ActionStop:
			return p.outcome(start, stage.Name(), res, tick)
		case res.Action == ActionSkip, res.Action == ActionExit:
			return p.outcome(start, stage.Name(), res, tick)
		}
	}
	return p.outcome(start, "", Continue("all stages complete"), tick)
}

// execute runs one stage with panic containment
func (p *Pipeline) execute(sc *Context, stage Stage) (res *StageResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("stage", stage.Name()).Interface("panic", r).Msg("stage panicked")
			res = stage.HandleError(sc, fmt.Errorf("panic in %s: %v", stage.Name(), r))
		}
	}()
	return stage.Execute(sc)
}

func (p *Pipeline) outcome(start time.Time, stageName string, res *StageResult, tick *TickContext) *Outcome {
	out := &Outcome{
		Stage:    stageName,
		Reason:   res.Message,
		Data:     res.Data,
		Decision: string(tick.Decision),
		Duration: time.Since(start),
	}
	switch {
	case !res.Success:
		out.Status, out.Kind = "failed", "error"
	case res.Action == ActionSkip:
		out.Status, out.Kind = "completed", "skip"
	case res.Action == ActionExit:
		out.Status, out.Kind = "completed", "exit"
	default:
		out.Status, out.Kind = "completed", "success"
	}
	return out
}
