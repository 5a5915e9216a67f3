package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"image-optimizer-go/internal/engine"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/picker"
	"image-optimizer-go/internal/progress"
	"image-optimizer-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoSelection is returned when Run is called without paths.
	ErrNoSelection = errors.New("no selection to optimize")
	// ErrAlreadyRunning is returned when a run is already in flight.
	ErrAlreadyRunning = errors.New("an optimization is already running")
)

// OptionsSaver persists the options of a completed run.
type OptionsSaver interface {
	Save(o options.OptimizeOptions) error
}

// ProgressFunc receives completion percentages while a run is in flight.
type ProgressFunc func(percent float64)

// RunRequest describes a run to dispatch.
type RunRequest struct {
	// Paths are the raw selected paths handed to the engine.
	Paths []string
	// Total is the number of resolved images, used for progress.
	Total              int
	Options            options.OptimizeOptions
	DefaultDestination string
	OnProgress         ProgressFunc
}

// Report is the result of a completed run.
type Report struct {
	Destination string
	Outcomes    []engine.Outcome
	Statistics  *statistics.Statistics
	Duration    time.Duration
}

// Orchestrator dispatches at most one engine run at a time.
type Orchestrator struct {
	engine   engine.Engine
	picker   picker.Picker
	options  OptionsSaver
	consumer *progress.Consumer
	logger   *logrus.Logger

	mutex       sync.RWMutex
	busy        bool
	isRunning   bool
	outcomes    []engine.Outcome
	observation *progress.Observation
}

// New returns an Orchestrator. The engine must publish its progress on bus.
func New(eng engine.Engine, pick picker.Picker, saver OptionsSaver, bus *progress.Bus, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   eng,
		picker:   pick,
		options:  saver,
		consumer: progress.NewConsumer(bus),
		logger:   logger,
	}
}

// Run asks for a destination and runs the engine over req.Paths.
// It returns a nil Report and nil error when no destination was chosen.
// Once dispatched the engine call is not cancelled by ctx.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*Report, error) {
	if len(req.Paths) == 0 {
		return nil, ErrNoSelection
	}

	o.mutex.Lock()
	if o.busy {
		o.mutex.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.busy = true
	o.mutex.Unlock()
	defer o.release()

	log := logger.WithOperation(o.logger, "run")

	destination, ok, err := o.picker.Pick(ctx, req.DefaultDestination)
	if err != nil {
		return nil, fmt.Errorf("pick destination: %w", err)
	}
	if !ok {
		log.Info("No destination selected, run cancelled")
		return nil, nil
	}

	start := time.Now()
	log = log.WithFields(logrus.Fields{
		"destination": destination,
		"inputs":      len(req.Paths),
		"images":      req.Total,
	})
	log.Info("Starting optimization")

	obs := o.consumer.Observe(req.Total)
	o.mutex.Lock()
	o.isRunning = true
	o.observation = obs
	o.mutex.Unlock()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range obs.Percentages() {
			log.Debugf("Progress %.0f%%", p)
			if req.OnProgress != nil {
				req.OnProgress(p)
			}
		}
	}()

	outcomes, err := func() ([]engine.Outcome, error) {
		defer func() {
			obs.Stop()
			<-forwarded
		}()
		return o.engine.Optimize(context.WithoutCancel(ctx), engine.Request{
			Paths:       req.Paths,
			Destination: destination,
			Options:     req.Options,
		})
	}()
	if err != nil {
		log.Errorf("Optimization failed: %v", err)
		return nil, fmt.Errorf("optimize: %w", err)
	}

	o.mutex.Lock()
	o.outcomes = outcomes
	o.mutex.Unlock()

	if err := o.options.Save(req.Options); err != nil {
		log.Warnf("Failed to save options: %v", err)
	}

	report := &Report{
		Destination: destination,
		Outcomes:    outcomes,
		Statistics:  statistics.Summarize(outcomes),
		Duration:    time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"succeeded": report.Statistics.Successes,
		"failed":    report.Statistics.Failures,
		"duration":  report.Duration.String(),
	}).Info("Optimization completed")
	return report, nil
}

func (o *Orchestrator) release() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.busy = false
	o.isRunning = false
}

// IsRunning reports whether the engine is currently working.
func (o *Orchestrator) IsRunning() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.isRunning
}

// Outcomes returns the outcomes of the last completed run.
func (o *Orchestrator) Outcomes() []engine.Outcome {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if o.outcomes == nil {
		return nil
	}
	out := make([]engine.Outcome, len(o.outcomes))
	copy(out, o.outcomes)
	return out
}

// Progress returns the latest percentage of the current or last run.
func (o *Orchestrator) Progress() float64 {
	o.mutex.RLock()
	obs := o.observation
	o.mutex.RUnlock()
	if obs == nil {
		return 0
	}
	return obs.Percent()
}
