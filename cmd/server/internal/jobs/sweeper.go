package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/stage"
	"github.com/hirelens/assessment-api/internal/types"
)

var ErrScoringTimedOut = errors.New("scoring timed out")

// Submit finalises an in progress instance and starts scoring it. A dispatch failure
// leaves the instance pending for the sweeper and is only logged. Returns false when
// the instance had already been submitted.
func Submit(
	ctx context.Context,
	db *gorm.DB,
	dispatcher Dispatcher,
	recorder *audit.Recorder,
	instance *models.TestInstance,
	jobID uuid.UUID,
	now time.Time,
	reason string,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "Submit", trace.WithAttributes(
		attribute.String("instance.id", instance.ID.String()),
		attribute.String("reason", reason),
	))
	defer span.End()

	submitted, err := models.SubmitInstance(ctx, db, instance, jobID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit instance")
		return false, err
	}
	if !submitted {
		span.SetStatus(codes.Ok, "instance already submitted")
		return false, nil
	}

	recorder.Record(ctx, nil, audit.ActTestSubmitted, map[string]any{
		"instance_id":        instance.ID.String(),
		"assessment_id":      instance.AssessmentID.String(),
		"current_stage":      instance.CurrentStage,
		"time_taken_seconds": instance.TimeTakenSeconds.V,
		"reason":             reason,
	})

	if err := dispatcher.Dispatch(ctx, instance.ID); err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(ctx, "failed to dispatch scoring", "error", err, "instance_id", instance.ID)
	}

	span.SetStatus(codes.Ok, "submitted instance")
	return true, nil
}

// Sweeper recovers instances that would otherwise never reach a terminal state:
// scoring runs that died, pending instances nobody picked up and instances whose
// time ran out without the candidate coming back.
type Sweeper struct {
	db         *gorm.DB
	scorer     *Scorer
	dispatcher Dispatcher
	recorder   *audit.Recorder
	staleAfter time.Duration
	grace      time.Duration
	now        func() time.Time
}

func NewSweeper(
	db *gorm.DB,
	scorer *Scorer,
	dispatcher Dispatcher,
	recorder *audit.Recorder,
	staleAfter time.Duration,
	grace time.Duration,
) *Sweeper {
	return &Sweeper{
		db:         db,
		scorer:     scorer,
		dispatcher: dispatcher,
		recorder:   recorder,
		staleAfter: staleAfter,
		grace:      grace,
		now:        time.Now,
	}
}

// Sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				logger.Logger.ErrorContext(ctx, "scoring sweep failed", "error", err)
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep", trace.WithNewRoot())
	defer span.End()

	now := s.now()
	cutoff := now.Add(-s.staleAfter)

	err := errors.Join(
		s.timeOutScoring(ctx, cutoff),
		s.redispatchPending(ctx, cutoff),
		s.submitExpired(ctx, now),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep incomplete")
		return err
	}

	span.SetStatus(codes.Ok, "swept")
	return nil
}

func (s *Sweeper) staleIDs(
	ctx context.Context,
	status types.ScoringStatus,
	column string,
	cutoff time.Time,
) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Where("scoring_status = ?", status).
		Where(column+" < ?", cutoff).
		Order("id").
		Pluck("id", &ids).
		Error
	return ids, err
}

func (s *Sweeper) timeOutScoring(ctx context.Context, cutoff time.Time) error {
	ctx, span := tracer.Start(ctx, "Sweeper.timeOutScoring")
	defer span.End()

	ids, err := s.staleIDs(ctx, types.ScoringStatusScoring, "scoring_started_at", cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find stale scoring instances")
		return err
	}

	var errs []error
	for _, id := range ids {
		ok, err := s.scorer.Finish(ctx, id, nil, "", ErrScoringTimedOut)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			s.recorder.Record(ctx, nil, audit.ActScoringSweepRecovered, map[string]any{
				"instance_id": id.String(),
				"outcome":     "timed_out",
			})
		}
	}

	span.SetAttributes(attribute.Int("instances", len(ids)))
	span.SetStatus(codes.Ok, "timed out stale scoring")
	return errors.Join(errs...)
}

func (s *Sweeper) redispatchPending(ctx context.Context, cutoff time.Time) error {
	ctx, span := tracer.Start(ctx, "Sweeper.redispatchPending")
	defer span.End()

	ids, err := s.staleIDs(ctx, types.ScoringStatusPending, "completed_at", cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find stale pending instances")
		return err
	}

	var errs []error
	for _, id := range ids {
		if err := s.dispatcher.Dispatch(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		s.recorder.Record(ctx, nil, audit.ActScoringSweepRecovered, map[string]any{
			"instance_id": id.String(),
			"outcome":     "redispatched",
		})
	}

	span.SetAttributes(attribute.Int("instances", len(ids)))
	span.SetStatus(codes.Ok, "redispatched stale pending")
	return errors.Join(errs...)
}

type expiredInstance struct {
	models.TestInstance
	JobID           uuid.UUID
	DurationSeconds int
}

func (s *Sweeper) submitExpired(ctx context.Context, now time.Time) error {
	ctx, span := tracer.Start(ctx, "Sweeper.submitExpired")
	defer span.End()

	var rows []expiredInstance
	err := s.db.WithContext(ctx).
		Model(&models.TestInstance{}).
		Select("test_instances.*, assessments.job_id AS job_id, assessments.duration_seconds AS duration_seconds").
		Joins("JOIN assessments ON assessments.id = test_instances.assessment_id").
		Where("test_instances.status = ?", types.InstanceStatusInProgress).
		Where(
			"test_instances.started_at + make_interval(secs => assessments.duration_seconds + ?) < ?",
			int(s.grace.Seconds()),
			now,
		).
		Find(&rows).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find expired instances")
		return err
	}

	var errs []error
	submitted := 0
	for i := range rows {
		row := &rows[i]
		if !stage.Expired(row.StartedAt, row.DurationSeconds, s.grace, now) {
			continue
		}

		ok, err := Submit(ctx, s.db, s.dispatcher, s.recorder, &row.TestInstance, row.JobID, now, "expired")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			submitted++
		}
	}

	span.SetAttributes(attribute.Int("submitted", submitted))
	span.SetStatus(codes.Ok, "submitted expired instances")
	return errors.Join(errs...)
}
