// Package monitor runs one balance check: fetch, classify, notify, persist.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"DormWatch/internal/config"
	"DormWatch/internal/metrics"
	"DormWatch/internal/model"
	"DormWatch/internal/notifier"
	"DormWatch/internal/recorder"
)

// State is a step of a run.
type State string

const (
	StateInit               State = "init"
	StateFetchBalances      State = "fetch_balances"
	StateClassify           State = "classify"
	StateNotify             State = "notify"
	StatePersist            State = "persist"
	StateRebuildWindow      State = "rebuild_window"
	StateDone               State = "done"
	StateAbortMissingConfig State = "abort_missing_config"
	StateAbortFetchFailed   State = "abort_fetch_failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAbortMissingConfig || s == StateAbortFetchFailed
}

// Fetcher produces the current reading.
type Fetcher interface {
	Fetch(ctx context.Context) (model.Reading, error)
}

// Dispatcher fans a report out to the notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, title string, r model.Reading) []notifier.Delivery
}

// Series is the persisted reading history.
type Series interface {
	Lock(ctx context.Context) (func(), error)
	Append(r model.Reading) ([]model.Reading, error)
	RebuildWindow(period string, current []model.Reading) error
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID      string
	State      State
	Reading    model.Reading
	Low        bool
	Title      string
	Deliveries []notifier.Delivery
	Duration   time.Duration
}

// Deps are the collaborators of a Runner. Recorder and Metrics are optional.
type Deps struct {
	Source   Fetcher
	Notifier Dispatcher
	Store    Series
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
}

// Runner executes runs. It is safe to call Run repeatedly; each call is an
// independent run with its own ID.
type Runner struct {
	cfg  *config.Config
	deps Deps
	log  zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewRunner creates a Runner. cfg is validated at the start of every run.
func NewRunner(cfg *config.Config, deps Deps, log zerolog.Logger) *Runner {
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	return &Runner{
		cfg:   cfg,
		deps:  deps,
		log:   log.With().Str("component", "monitor").Logger(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Run performs one check. The returned error is the cause of an abort; the
// Outcome state tells which abort it was.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	start := r.now()
	out := Outcome{RunID: r.newID(), State: StateInit}
	log := r.log.With().Str("run_id", out.RunID).Logger()
	log.Info().Msg("run started")

	finish := func(s State, err error) (Outcome, error) {
		out.State = s
		out.Duration = r.now().Sub(start)
		if r.deps.Metrics != nil {
			r.deps.Metrics.ObserveRun(string(s), r.now())
			if err := r.deps.Metrics.Push(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("metrics push failed")
			}
		}
		lvl := zerolog.InfoLevel
		if err != nil {
			lvl = zerolog.ErrorLevel
		}
		log.WithLevel(lvl).Err(err).Str("state", string(s)).Dur("duration", out.Duration).Msg("run finished")
		return out, err
	}

	if err := r.checkConfig(); err != nil {
		return finish(StateAbortMissingConfig, err)
	}
	if r.deps.Source == nil || r.deps.Notifier == nil || r.deps.Store == nil {
		return finish(StateAbortMissingConfig, errors.New("runner is missing a source, notifier or store"))
	}

	out.State = StateFetchBalances
	fetchStart := r.now()
	reading, err := r.deps.Source.Fetch(ctx)
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveFetch(r.now().Sub(fetchStart))
	}
	if err != nil {
		return finish(StateAbortFetchFailed, fmt.Errorf("fetch balances: %w", err))
	}
	out.Reading = reading

	out.State = StateClassify
	out.Low = model.IsLow(reading)
	out.Title = notifier.Title(reading)
	log.Info().
		Float64("light", reading.Light).
		Float64("ac", reading.AC).
		Bool("low", out.Low).
		Msg("balances classified")
	r.recordReading(log, out)

	out.State = StateNotify
	out.Deliveries = r.deps.Notifier.Dispatch(ctx, out.Title, reading)
	r.recordDeliveries(log, out)

	out.State = StatePersist
	unlock, err := r.deps.Store.Lock(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("store lock unavailable, persisting without it")
		unlock = func() {}
	}
	current, err := r.deps.Store.Append(reading)
	if err != nil {
		log.Error().Err(err).Msg("append reading failed")
	}

	out.State = StateRebuildWindow
	if err := r.deps.Store.RebuildWindow(reading.Period(), current); err != nil {
		log.Error().Err(err).Msg("rebuild recent window failed")
	}
	unlock()

	return finish(StateDone, nil)
}

func (r *Runner) checkConfig() error {
	if r.cfg == nil {
		return &config.Error{Invalid: "no configuration loaded"}
	}
	return r.cfg.Validate()
}

func (r *Runner) recordReading(log zerolog.Logger, out Outcome) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.ObserveReading(out.Reading.Light, out.Reading.AC, out.Low)
	}
	err := r.deps.Recorder.RecordReading(&recorder.ReadingEvent{
		RunID: out.RunID,
		At:    out.Reading.At,
		Light: out.Reading.Light,
		AC:    out.Reading.AC,
		Low:   out.Low,
	})
	if err != nil {
		log.Warn().Err(err).Msg("record reading")
	}
}

func (r *Runner) recordDeliveries(log zerolog.Logger, out Outcome) {
	at := r.now()
	for _, d := range out.Deliveries {
		if r.deps.Metrics != nil {
			r.deps.Metrics.ObserveDelivery(d.Channel, string(d.Status))
		}
		detail := d.Reason
		if d.Err != nil {
			detail = d.Err.Error()
		}
		err := r.deps.Recorder.RecordDelivery(&recorder.DeliveryEvent{
			RunID:    out.RunID,
			At:       at,
			Channel:  d.Channel,
			Status:   string(d.Status),
			Attempts: d.Attempts,
			Detail:   detail,
		})
		if err != nil {
			log.Warn().Err(err).Str("channel", d.Channel).Msg("record delivery")
		}
	}
}
