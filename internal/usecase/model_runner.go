package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"StreamCast/internal/domain/models"
	drepo "StreamCast/internal/domain/repository"
	domsvc "StreamCast/internal/domain/service"
	"StreamCast/internal/tracker"
	"StreamCast/pkg/logger"
)

// ResultSink receives every TickResult the runner produces.
type ResultSink interface {
	Process(ctx context.Context, r *models.TickResult) error
}

// RunnerConfig is the model-driver slice of the config.
type RunnerConfig struct {
	Key             string
	RingSize        int
	ErrorPolicy     tracker.ErrorPolicy
	SaveFrequency   int64
	DisableTraining bool
	Testing         bool
}

// ModelRunner feeds records through a Predictor and scores the forecasts with
// a Tracker. Calls are serialised; tick order is the record order.
type ModelRunner struct {
	cfg     RunnerConfig
	pred    domsvc.Predictor
	snaps   drepo.SnapshotStore
	sink    ResultSink
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	runID  string
	trk    *tracker.Tracker
	latest *models.TickResult
}

// NewModelRunner sizes the tracker from the predictor's horizon count.
// snaps and sink may be nil.
func NewModelRunner(
	pred domsvc.Predictor,
	snaps drepo.SnapshotStore,
	sink ResultSink,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg RunnerConfig,
) (*ModelRunner, error) {
	if pred == nil {
		return nil, fmt.Errorf("model runner: predictor is nil")
	}
	if cfg.ErrorPolicy == "" {
		cfg.ErrorPolicy = tracker.PerTick
	}
	opts := []tracker.Option{tracker.WithErrorPolicy(cfg.ErrorPolicy)}
	if cfg.RingSize > 0 {
		opts = append(opts, tracker.WithRingSize(cfg.RingSize))
	}
	trk, err := tracker.New(pred.Horizons(), opts...)
	if err != nil {
		return nil, fmt.Errorf("model runner: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ModelRunner{
		cfg:     cfg,
		pred:    pred,
		snaps:   snaps,
		sink:    sink,
		metrics: metrics,
		log:     log,
		now:     time.Now,
		runID:   uuid.NewString(),
		trk:     trk,
	}, nil
}

// RunID identifies the current run in stored results and snapshots.
func (r *ModelRunner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Horizons returns K.
func (r *ModelRunner) Horizons() int { return r.pred.Horizons() }

// Run processes one value stamped with the current time.
func (r *ModelRunner) Run(ctx context.Context, value float64) (models.TickResult, error) {
	return r.RunRecord(ctx, &models.MetricRecord{Value: value})
}

// RunRecord processes one record. The tracker is only advanced when the
// predictor step succeeds, so a failed call can be retried without skipping a tick.
func (r *ModelRunner) RunRecord(ctx context.Context, rec *models.MetricRecord) (models.TickResult, error) {
	if rec == nil {
		return models.TickResult{}, fmt.Errorf("model runner: record is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	fc, err := r.pred.Step(ctx, rec.Value)
	if err != nil {
		r.metrics.RecordError("model_step")
		return models.TickResult{}, fmt.Errorf("predictor step: %w", err)
	}
	obs, err := r.trk.Observe(fc.Actual, fc.Predictions)
	if err != nil {
		r.metrics.RecordError("model_observe")
		return models.TickResult{}, fmt.Errorf("observe: %w", err)
	}
	r.metrics.RecordLatency("model_step", time.Since(start).Seconds())

	ts := r.now().UTC()
	if rec.Timestamp > 0 {
		ts = time.Unix(rec.Timestamp, 0).UTC()
	}
	res := models.TickResult{
		RunID:        r.runID,
		Tick:         obs.Tick,
		Timestamp:    ts,
		Actual:       fc.Actual,
		Predictions:  append([]float64(nil), fc.Predictions...),
		Due:          models.NullableFloats(obs.Due),
		MeanError:    obs.MeanError,
		Scored:       obs.Scored,
		AnomalyScore: fc.AnomalyScore,
	}

	if r.shouldSave(obs.Tick) {
		if err := r.saveLocked(ctx); err != nil {
			r.metrics.RecordError("snapshot")
			r.log.Error("snapshot failed", logger.Int64("tick", obs.Tick), logger.Error(err))
		}
	}

	r.report(&res, obs.Due)
	r.export(&res, rec.Source)

	latest := res
	r.latest = &latest

	if r.sink != nil {
		if err := r.sink.Process(ctx, &latest); err != nil {
			// the tick has been consumed; a sink failure must not replay it
			r.metrics.RecordError("result_sink")
			r.log.Warn("result sink rejected tick", logger.Int64("tick", res.Tick), logger.Error(err))
		}
	}
	return res, nil
}

func (r *ModelRunner) shouldSave(tick int64) bool {
	return r.snaps != nil && !r.cfg.DisableTraining && r.cfg.SaveFrequency > 0 && tick%r.cfg.SaveFrequency == 0
}

func (r *ModelRunner) report(res *models.TickResult, due []float64) {
	fields := []logger.Field{
		logger.Int64("record", res.Tick),
		logger.Float64("actual", res.Actual),
		logger.Floats("due", due),
		logger.Float64("anomaly", res.AnomalyScore),
		logger.Floats("mean_error", res.MeanError),
		logger.Floats("predictions", res.Predictions),
	}
	if !r.cfg.DisableTraining && !r.cfg.Testing {
		r.log.Info("tick", fields...)
		return
	}
	r.log.Debug("tick", fields...)
}

func (r *ModelRunner) export(res *models.TickResult, source string) {
	for i, e := range res.MeanError {
		r.metrics.RecordHorizonError(i+1, e)
	}
	r.metrics.RecordAnomaly(res.AnomalyScore)
	r.metrics.RecordTick(res.Tick)
	if source == "" {
		source = r.cfg.Key
	}
	r.metrics.RecordLastValue(source, res.Actual)
}

// Save writes a snapshot immediately, e.g. on shutdown.
func (r *ModelRunner) Save(ctx context.Context) error {
	if r.snaps == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(ctx)
}

func (r *ModelRunner) saveLocked(ctx context.Context) error {
	snap := models.Snapshot{
		Key:     r.cfg.Key,
		RunID:   r.runID,
		Tick:    r.trk.Tick(),
		SavedAt: r.now().UTC(),
		Tracker: r.trk.Snapshot(),
	}
	if sp, ok := r.pred.(domsvc.StatefulPredictor); ok {
		b, err := sp.State()
		if err != nil {
			return fmt.Errorf("predictor state: %w", err)
		}
		snap.Predictor = json.RawMessage(b)
	}
	if err := r.snaps.Save(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", logger.String("key", snap.Key), logger.Int64("tick", snap.Tick))
	return nil
}

// Restore loads the latest snapshot for the configured key. It reports whether
// one was found; the run continues under the snapshot's run id.
func (r *ModelRunner) Restore(ctx context.Context) (bool, error) {
	if r.snaps == nil {
		return false, nil
	}
	snap, ok, err := r.snaps.Load(ctx, r.cfg.Key)
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}
	if snap.Tracker.Horizons != r.pred.Horizons() {
		return false, fmt.Errorf("snapshot %q has %d horizons, predictor has %d", snap.Key, snap.Tracker.Horizons, r.pred.Horizons())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ring := r.trk.RingSize(); snap.Tracker.RingSize != ring {
		return false, fmt.Errorf("snapshot %q has ring size %d, configured %d", snap.Key, snap.Tracker.RingSize, ring)
	}
	trk, err := tracker.Restore(snap.Tracker)
	if err != nil {
		return false, err
	}
	if want := r.trk.Policy(); trk.Policy() != want {
		r.log.Warn("snapshot error policy overridden by config",
			logger.String("key", snap.Key),
			logger.String("snapshot", string(trk.Policy())),
			logger.String("configured", string(want)),
		)
		if err := trk.SetPolicy(want); err != nil {
			return false, err
		}
	}
	if sp, ok := r.pred.(domsvc.StatefulPredictor); ok && len(snap.Predictor) > 0 {
		if err := sp.Restore(snap.Predictor); err != nil {
			return false, fmt.Errorf("restore predictor: %w", err)
		}
	}
	r.trk = trk
	if snap.RunID != "" {
		r.runID = snap.RunID
	}
	r.log.Info("model restored",
		logger.String("key", snap.Key),
		logger.String("run_id", r.runID),
		logger.Int64("tick", trk.Tick()),
	)
	return true, nil
}

// Latest returns the most recent result, if any.
func (r *ModelRunner) Latest() (models.TickResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return models.TickResult{}, false
	}
	return *r.latest, true
}

// Errors reports the tracker's running accuracy.
func (r *ModelRunner) Errors() models.ErrorsResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return models.ErrorsResponse{
		RunID:     r.runID,
		Tick:      r.trk.Tick(),
		Horizons:  r.trk.Horizons(),
		Policy:    string(r.trk.Policy()),
		MeanError: r.trk.MeanError(),
		Scored:    r.trk.Scored(),
	}
}
