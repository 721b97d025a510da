package v1

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/lifecycle"
	"github.com/hirelens/assessment-api/internal/types"
)

const maxTitleLength = 100

// First non-blank line of the description, cut to the title length
func defaultTitle(description string) string {
	title := ""
	for _, line := range strings.Split(description, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			title = line
			break
		}
	}

	if utf8.RuneCountInString(title) > maxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleLength]))
	}
	if title == "" {
		title = "Untitled role"
	}
	return title
}

func (h *Handler) CreateJob(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateJob")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.JobCreateRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	description := strings.TrimSpace(rdata.Description)
	if description == "" {
		span.SetStatus(codes.Ok, "empty description")
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("description must not be blank"),
		)
	}

	title := defaultTitle(description)
	if rdata.Title != nil && strings.TrimSpace(*rdata.Title) != "" {
		title = strings.TrimSpace(*rdata.Title)
	}

	job := &models.Job{
		OwnerID:        user.ID,
		Title:          title,
		RawDescription: description,
		Status:         types.JobStatusDraft,
		LastActivityAt: now,
	}

	span.AddEvent("inserting into database")
	if err := db.Create(job).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert job")
		return response.InternalServerError
	}
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	h.recorder.Record(ctx, &user.ID, audit.ActJobCreated, map[string]any{
		"job_id": job.ID.String(),
		"title":  job.Title,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusCreated, jobResponse(job))
}

func (h *Handler) GetJob(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "GetJob")
	defer span.End()

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("job.id", job.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, jobResponse(job))
}

func (h *Handler) DeleteJob(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "DeleteJob")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	span.AddEvent("deleting job and everything under it")
	if err := db.Delete(&models.Job{}, "id = ?", job.ID).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job")
		return response.InternalServerError
	}

	h.recorder.Record(ctx, &user.ID, audit.ActJobDeleted, map[string]any{
		"job_id": job.ID.String(),
		"title":  job.Title,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}

// Moves the job to a new status and brings its assessments along in the same transaction
func (h *Handler) SetJobStatus(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SetJobStatus")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.JobStatusRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("to", string(rdata.Status)),
	)

	var from types.JobStatus
	applied := []lifecycle.AssessmentChange{}
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockByID[models.Job](ctx, tx, job.ID)
		if err != nil {
			return err
		}
		from = locked.Status

		if err := lifecycle.CheckJobTransition(locked.Status, rdata.Status); err != nil {
			return err
		}

		err = tx.Model(&models.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{"status": rdata.Status, "last_activity_at": now}).
			Error
		if err != nil {
			return err
		}

		states, err := models.CascadeStates(ctx, tx, job.ID)
		if err != nil {
			return err
		}

		for _, change := range lifecycle.PlanCascade(rdata.Status, states, h.config.Assessment.MinDurationSecs) {
			ok, err := models.ApplyAssessmentChange(ctx, tx, change, now)
			if err != nil {
				return err
			}
			if ok {
				applied = append(applied, change)
			}
		}

		return nil
	})
	if err != nil {
		return domainError(span, err, "failed to change job status")
	}

	h.recorder.Record(ctx, &user.ID, audit.ActJobStatusChanged, map[string]any{
		"job_id": job.ID.String(),
		"from":   from,
		"to":     rdata.Status,
	})

	cascaded := make([]uuid.UUID, 0, len(applied))
	for _, change := range applied {
		cascaded = append(cascaded, change.ID)
		h.recorder.Record(ctx, &user.ID, audit.ActAssessmentCascaded, map[string]any{
			"job_id":        job.ID.String(),
			"assessment_id": change.ID.String(),
			"from":          change.From,
			"to":            change.To,
			"reason":        change.Reason,
		})
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.JobStatusResponse{Status: rdata.Status, Cascaded: cascaded})
}

func (h *Handler) Dashboard(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Dashboard")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	var jobList []models.Job
	err = db.Where("owner_id = ?", user.ID).Order("created_at DESC").Find(&jobList).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch jobs")
		return response.InternalServerError
	}

	ids := make([]uuid.UUID, len(jobList))
	for i, j := range jobList {
		ids[i] = j.ID
	}

	out := make([]types.DashboardJob, 0, len(jobList))
	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "no jobs")
		return c.JSON(http.StatusOK, out)
	}

	var schemas []models.ParsedSchema
	if err := db.Where("job_id IN ?", ids).Find(&schemas).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch schemas")
		return response.InternalServerError
	}
	schemaFor := make(map[uuid.UUID]*models.ParsedSchema, len(schemas))
	for i := range schemas {
		schemaFor[schemas[i].JobID] = &schemas[i]
	}

	var counts []struct {
		JobID uuid.UUID
		Count int64
	}
	err = db.Model(&models.CandidateSubmission{}).
		Select("job_id, count(*) AS count").
		Where("job_id IN ?", ids).
		Group("job_id").
		Scan(&counts).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count submissions")
		return response.InternalServerError
	}
	countFor := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		countFor[c.JobID] = c.Count
	}

	var latest []struct {
		JobID uuid.UUID
		ID    uuid.UUID
	}
	err = db.Raw(
		`SELECT DISTINCT ON (job_id) job_id, id FROM assessments
		WHERE job_id IN ? ORDER BY job_id, created_at DESC`,
		ids,
	).Scan(&latest).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch latest assessments")
		return response.InternalServerError
	}
	latestFor := make(map[uuid.UUID]uuid.UUID, len(latest))
	for _, l := range latest {
		latestFor[l.JobID] = l.ID
	}

	for _, j := range jobList {
		entry := types.DashboardJob{
			ID:              j.ID,
			Title:           j.Title,
			Status:          j.Status,
			CreatedAt:       j.CreatedAt,
			LastActivityAt:  j.LastActivityAt,
			SubmissionCount: countFor[j.ID],
		}
		if s, ok := schemaFor[j.ID]; ok {
			entry.Schema = &types.SchemaSummary{
				Function:   s.Function,
				RoleFamily: s.RoleFamily,
				Seniority:  s.Seniority,
				Valid:      s.IsValid,
			}
		}
		if id, ok := latestFor[j.ID]; ok {
			entry.LatestAssessmentID = &id
		}
		out = append(out, entry)
	}

	span.SetAttributes(attribute.Int("jobs", len(out)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, out)
}
