package agent

import (
	"context"
	"errors"
	"fmt"

	"gamelearn/internal/experience"
	"gamelearn/internal/normalize"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

type EventKind int

const (
	// EventNone is returned by an inactive controller.
	EventNone EventKind = iota
	EventStep
	EventEpisodeEnd
)

// Event reports what a step did. At an episode boundary the caller performs
// the reset named by Reset; the controller never resets the world itself.
type Event struct {
	Kind      EventKind
	Reset     ResetScope
	Episode   int
	Return    float64
	Steps     int
	Truncated bool
}

type ControllerConfig struct {
	Mode BehaviorMode
	// MaxSteps truncates an episode after that many steps. Zero disables it.
	MaxSteps int
	// DoneReset is the scope reported when the behavior signals done.
	// ResetDefault means ResetAgent.
	DoneReset ResetScope
	// Normalizer rescales observations to [-1,1] before they reach the
	// decider. It absorbs observations while the controller records.
	Normalizer *normalize.RunningNormalizer
}

// Controller runs one agent: it collects observations, dispatches on the
// behavior mode and records samples into its own buffer.
type Controller struct {
	id       string
	behavior Behavior
	decider  Decider
	spec     Spec
	cfg      ControllerConfig
	buffer   *experience.Buffer

	episode       int
	steps         int
	episodeReturn float64
}

func NewController(id string, behavior Behavior, decider Decider, cfg ControllerConfig) (*Controller, error) {
	if id == "" {
		return nil, errors.New("agent id is required")
	}
	if behavior == nil {
		return nil, errors.New("behavior is required")
	}
	if cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("max steps must be >= 0, got %d", cfg.MaxSteps)
	}
	spec := behavior.Spec()
	buffer, err := experience.NewBuffer(spec.ObservationSize, spec.ActionSize)
	if err != nil {
		return nil, err
	}
	if cfg.DoneReset == ResetDefault {
		cfg.DoneReset = ResetAgent
	}
	c := &Controller{
		id:       id,
		behavior: behavior,
		decider:  decider,
		spec:     spec,
		cfg:      cfg,
		buffer:   buffer,
	}
	if err := c.checkDecider(cfg.Mode); err != nil {
		return nil, err
	}
	if cfg.Normalizer != nil && cfg.Normalizer.Dim() != spec.ObservationSize {
		return nil, fmt.Errorf("%w: observation size=%d normalizer=%d", ErrDimensionMismatch, spec.ObservationSize, cfg.Normalizer.Dim())
	}
	return c, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Mode() BehaviorMode { return c.cfg.Mode }

// SetMode switches the behavior mode between steps. Leaving a recording mode
// truncates the open episode, so later samples start a new one.
func (c *Controller) SetMode(mode BehaviorMode) error {
	if err := c.checkDecider(mode); err != nil {
		return err
	}
	if c.cfg.Mode.records() && !mode.records() {
		c.buffer.Truncate()
	}
	c.cfg.Mode = mode
	return nil
}

func (c *Controller) Buffer() *experience.Buffer { return c.buffer }

// Drain hands over completed episodes.
func (c *Controller) Drain() []*experience.Episode {
	return c.buffer.Drain()
}

func (c *Controller) Step(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	mode := c.cfg.Mode
	if mode == Inactive {
		return Event{Kind: EventNone, Episode: c.episode}, nil
	}

	obs := c.behavior.CollectObservations()
	if len(obs) != c.spec.ObservationSize {
		return Event{}, fmt.Errorf("%w: observation size=%d got=%d", ErrDimensionMismatch, c.spec.ObservationSize, len(obs))
	}
	if c.cfg.Normalizer != nil {
		scaled, err := c.cfg.Normalizer.NormalizeMinusOneOne(obs, mode.records())
		if err != nil {
			return Event{}, fmt.Errorf("normalize observation: %w", err)
		}
		obs = scaled
	}

	var (
		action   []float64
		decision Decision
		err      error
	)
	switch mode {
	case InferenceOnly:
		decision, err = c.decider.Decide(obs, false)
		action = decision.Action
	case Learning:
		decision, err = c.decider.Decide(obs, true)
		action = decision.Action
	case Heuristic:
		action = c.behavior.Heuristic()
	case Demonstration:
		action = c.behavior.Heuristic()
		if len(action) == c.spec.ActionSize {
			decision, err = c.decider.Evaluate(obs, action)
		}
	default:
		return Event{}, fmt.Errorf("unsupported behavior mode: %s", mode)
	}
	if err != nil {
		return Event{}, fmt.Errorf("agent %s: %w", c.id, err)
	}
	if len(action) != c.spec.ActionSize {
		return Event{}, fmt.Errorf("%w: action size=%d got=%d", ErrDimensionMismatch, c.spec.ActionSize, len(action))
	}

	feedback := c.behavior.OnActionReceived(append([]float64(nil), action...))
	c.steps++
	c.episodeReturn += feedback.Reward
	truncated := !feedback.Done && c.cfg.MaxSteps > 0 && c.steps >= c.cfg.MaxSteps

	if mode.records() {
		sample := experience.NewSample(obs, action, decision.LogProbs, decision.Value, feedback.Reward, feedback.Done)
		if err := c.buffer.Add(sample); err != nil {
			return Event{}, fmt.Errorf("agent %s: %w", c.id, err)
		}
	}

	switch {
	case feedback.Done:
		return c.finish(c.cfg.DoneReset, false), nil
	case truncated:
		c.buffer.Truncate()
		return c.finish(ResetAgent, true), nil
	default:
		return Event{Kind: EventStep, Episode: c.episode, Return: c.episodeReturn, Steps: c.steps}, nil
	}
}

// EndEpisode closes the current episode from outside, e.g. when the game
// decides the round is over. The open episode is truncated.
func (c *Controller) EndEpisode(scope ResetScope) Event {
	c.buffer.Truncate()
	return c.finish(scope, true)
}

func (c *Controller) finish(scope ResetScope, truncated bool) Event {
	if scope == ResetDefault {
		scope = ResetAgent
	}
	ev := Event{
		Kind:      EventEpisodeEnd,
		Reset:     scope,
		Episode:   c.episode,
		Return:    c.episodeReturn,
		Steps:     c.steps,
		Truncated: truncated,
	}
	c.episode++
	c.steps = 0
	c.episodeReturn = 0
	return ev
}

func (c *Controller) checkDecider(mode BehaviorMode) error {
	if !mode.needsDecider() {
		return nil
	}
	if c.decider == nil {
		return fmt.Errorf("mode %s requires a decider", mode)
	}
	if c.decider.ObservationSize() != c.spec.ObservationSize {
		return fmt.Errorf("%w: observation size=%d decider=%d", ErrDimensionMismatch, c.spec.ObservationSize, c.decider.ObservationSize())
	}
	if c.decider.ActionSize() != c.spec.ActionSize {
		return fmt.Errorf("%w: action size=%d decider=%d", ErrDimensionMismatch, c.spec.ActionSize, c.decider.ActionSize())
	}
	return nil
}
