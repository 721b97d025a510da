package types

import (
	"time"

	"github.com/google/uuid"
)

// HR accounts
type (
	Credentials struct {
		Email    string `json:"email"    validate:"required,loose_email,max=320"`
		Password string `json:"password" validate:"required,min=8,max=256"`
	}

	SessionResponse struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
		UserID    uuid.UUID `json:"user_id"`
	}

	MagicLinkRequest struct {
		Email string `json:"email" validate:"required,loose_email,max=320"`
	}

	MagicLinkVerifyRequest struct {
		Token string `json:"token" validate:"required,max=128"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	MeResponse struct {
		ID          uuid.UUID  `json:"id"`
		Email       string     `json:"email"`
		LastLoginAt *time.Time `json:"last_login_at"`
	}
)

// Jobs and schemas
type (
	JobCreateRequest struct {
		Title       *string `json:"title"       validate:"omitempty,max=100"`
		Description string  `json:"description" validate:"required,max=50000"`
	}

	JobStatusRequest struct {
		Status JobStatus `json:"status" validate:"required,job_status"`
	}

	JobResponse struct {
		CreatedAt      time.Time `json:"created_at"`
		LastActivityAt time.Time `json:"last_activity_at"`
		Title          string    `json:"title"`
		RawDescription string    `json:"raw_description"`
		Status         JobStatus `json:"status"`
		ID             uuid.UUID `json:"id"`
	}

	JobStatusResponse struct {
		Status JobStatus `json:"status"`
		// Assessments whose status followed the job
		Cascaded []uuid.UUID `json:"cascaded"`
	}

	SchemaResponse struct {
		CreatedAt  time.Time        `json:"created_at"`
		Schema     ParsedJD         `json:"schema"`
		Validation SchemaValidation `json:"validation"`
		ID         uuid.UUID        `json:"id"`
	}

	SchemaSummary struct {
		Function   JDFunction `json:"function"`
		RoleFamily string     `json:"role_family"`
		Seniority  Seniority  `json:"seniority"`
		Valid      bool       `json:"valid"`
	}

	DashboardJob struct {
		CreatedAt          time.Time      `json:"created_at"`
		LastActivityAt     time.Time      `json:"last_activity_at"`
		Schema             *SchemaSummary `json:"schema"`
		LatestAssessmentID *uuid.UUID     `json:"latest_assessment_id"`
		Title              string         `json:"title"`
		Status             JobStatus      `json:"status"`
		SubmissionCount    int64          `json:"submission_count"`
		ID                 uuid.UUID      `json:"id"`
	}
)

// Assessments and questions
type (
	QuestionView struct {
		CharLimit       *int         `json:"char_limit"`
		QuestionType    QuestionType `json:"question_type"`
		PromptText      string       `json:"prompt_text"`
		ScoringHint     string       `json:"scoring_hint,omitempty"`
		InternalIntent  Intent       `json:"internal_intent,omitempty"`
		Options         []Option     `json:"options"`
		StageIndex      int          `json:"stage_index"`
		PositionInStage int          `json:"position_in_stage"`
		ID              uuid.UUID    `json:"id"`
	}

	StageView struct {
		Questions  []QuestionView `json:"questions"`
		StageIndex int            `json:"stage_index"`
	}

	AssessmentResponse struct {
		ActiveFrom      *time.Time       `json:"active_from"`
		ActiveUntil     *time.Time       `json:"active_until"`
		PublishedAt     *time.Time       `json:"published_at"`
		ClosedAt        *time.Time       `json:"closed_at"`
		CreatedAt       time.Time        `json:"created_at"`
		Status          AssessmentStatus `json:"status"`
		Stages          []StageView      `json:"stages"`
		DurationSeconds int              `json:"duration_seconds"`
		JobID           uuid.UUID        `json:"job_id"`
		ID              uuid.UUID        `json:"id"`
		SingleUseLinks  bool             `json:"single_use_links"`
	}

	GenerateResponse struct {
		Validation AssessmentValidation `json:"validation"`
		Assessment AssessmentResponse   `json:"assessment"`
	}

	PublishRequest struct {
		DurationSeconds *int `json:"duration_seconds" validate:"omitempty,min=1,max=86400"`
	}

	LifecycleResponse struct {
		PublishedAt *time.Time       `json:"published_at,omitempty"`
		ClosedAt    *time.Time       `json:"closed_at,omitempty"`
		Status      AssessmentStatus `json:"status"`
	}

	AssessmentUpdateRequest struct {
		ActiveFrom      Optional[time.Time] `json:"active_from"`
		ActiveUntil     Optional[time.Time] `json:"active_until"`
		DurationSeconds *int                `json:"duration_seconds" validate:"omitempty,min=1,max=86400"`
		SingleUseLinks  *bool               `json:"single_use_links"`
	}

	QuestionEditRequest struct {
		QuestionType *QuestionType `json:"question_type"`
		PromptText   *string       `json:"prompt_text"   validate:"omitempty,min=1,max=5000"`
		ScoringHint  *string       `json:"scoring_hint"  validate:"omitempty,max=5000"`
		Options      *[]Option     `json:"options"       validate:"omitempty,dive"`
		CharLimit    Optional[int] `json:"char_limit"`
	}

	ReorderRequest struct {
		NewOrder   []uuid.UUID `json:"new_order"   validate:"required"`
		StageIndex int         `json:"stage_index" validate:"required"`
	}
)

// Invites and candidate sessions
type (
	InviteRequest struct {
		ExpiryHours *int  `json:"expiry_hours" validate:"omitempty,min=1,max=8760"`
		SingleUse   *bool `json:"single_use"`
	}

	// Invite token as it arrives in a path or query string
	InviteToken struct {
		Token string `json:"token" validate:"required,invite_token"`
	}

	InviteResponse struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
		URL       string    `json:"url"`
		ID        uuid.UUID `json:"id"`
		SingleUse bool      `json:"single_use"`
	}

	InviteAssessmentSummary struct {
		ActiveUntil     *time.Time `json:"active_until"`
		JobTitle        string     `json:"job_title"`
		DurationSeconds int        `json:"duration_seconds"`
		StageCount      int        `json:"stage_count"`
		QuestionCount   int        `json:"question_count"`
		ID              uuid.UUID  `json:"id"`
	}

	InviteVerifyResponse struct {
		Assessment InviteAssessmentSummary `json:"assessment"`
		Valid      bool                    `json:"valid"`
	}

	StartRequest struct {
		CandidateName  *string `json:"candidate_name"  validate:"omitempty,max=200"`
		CandidateEmail *string `json:"candidate_email" validate:"omitempty,loose_email,max=320"`
	}

	// Question as a candidate sees it, without hints or correct markers
	CandidateQuestion struct {
		CharLimit       *int         `json:"char_limit"`
		QuestionType    QuestionType `json:"question_type"`
		PromptText      string       `json:"prompt_text"`
		Options         []Option     `json:"options"`
		StageIndex      int          `json:"stage_index"`
		PositionInStage int          `json:"position_in_stage"`
		ID              uuid.UUID    `json:"id"`
	}

	StartResponse struct {
		Deadline        time.Time           `json:"deadline"`
		Questions       []CandidateQuestion `json:"questions"`
		DurationSeconds int                 `json:"duration_seconds"`
		CurrentStage    int                 `json:"current_stage"`
		InstanceID      uuid.UUID           `json:"instance_id"`
	}

	AnswerView struct {
		SubmittedAt      time.Time `json:"submitted_at"`
		AnswerText       *string   `json:"answer_text"`
		SelectedOptionID *string   `json:"selected_option_id"`
		QuestionID       uuid.UUID `json:"question_id"`
	}

	StageQuery struct {
		Stage *int `query:"stage" validate:"omitempty,min=1,max=4"`
	}

	StageQuestionsResponse struct {
		Deadline     time.Time           `json:"deadline"`
		Questions    []CandidateQuestion `json:"questions"`
		Answers      []AnswerView        `json:"answers"`
		Stage        int                 `json:"stage"`
		CurrentStage int                 `json:"current_stage"`
	}

	AnswerInput struct {
		AnswerText       *string   `json:"answer_text"        validate:"omitempty,max=20000"`
		SelectedOptionID *string   `json:"selected_option_id" validate:"omitempty,max=100"`
		QuestionID       uuid.UUID `json:"question_id"        validate:"required"`
	}

	AnswerSubmissionRequest struct {
		Answers []AnswerInput `json:"answers" validate:"max=50,dive"`
		Advance bool          `json:"advance"`
	}

	AnswerSubmissionResponse struct {
		Status        InstanceStatus `json:"status"`
		ScoringStatus *ScoringStatus `json:"scoring_status,omitempty"`
		// Questions of the stage the candidate moved to
		NextStage    []CandidateQuestion `json:"next_stage,omitempty"`
		CurrentStage int                 `json:"current_stage"`
		Complete     bool                `json:"complete"`
	}

	EndResponse struct {
		Status           InstanceStatus `json:"status"`
		TimeTakenSeconds int            `json:"time_taken_seconds"`
	}
)

// Results and submissions
type (
	OverrideRequest struct {
		Recommendation Recommendation `json:"recommendation" validate:"required,recommendation"`
	}

	SubmissionSummary struct {
		CompletedAt             *time.Time      `json:"completed_at"`
		CandidateName           *string         `json:"candidate_name"`
		CandidateEmail          *string         `json:"candidate_email"`
		TimeTakenSeconds        *int            `json:"time_taken_seconds"`
		ScoringStatus           *ScoringStatus  `json:"scoring_status"`
		Recommendation          *Recommendation `json:"recommendation"`
		HROverride              *Recommendation `json:"hr_override"`
		EffectiveRecommendation *Recommendation `json:"effective_recommendation"`
		OverallScore            *float64        `json:"overall_score"`
		StartedAt               time.Time       `json:"started_at"`
		Status                  InstanceStatus  `json:"status"`
		CurrentStage            int             `json:"current_stage"`
		InstanceID              uuid.UUID       `json:"instance_id"`
		AssessmentID            uuid.UUID       `json:"assessment_id"`
	}

	AnsweredQuestion struct {
		Answer   *AnswerView  `json:"answer"`
		Question QuestionView `json:"question"`
	}

	SubmissionStage struct {
		Questions  []AnsweredQuestion `json:"questions"`
		StageIndex int                `json:"stage_index"`
	}

	SubmissionDetail struct {
		SubmissionSummary
		SessionMeta        map[string]string `json:"session_meta"`
		ScoringExplanation string            `json:"scoring_explanation"`
		RawScoringOutput   string            `json:"raw_scoring_output"`
		ScoringError       string            `json:"scoring_error,omitempty"`
		// Presigned link to the archived scoring transcript, when there is one
		TranscriptURL    string            `json:"transcript_url,omitempty"`
		ScoringBreakdown []StageScore      `json:"scoring_breakdown"`
		Stages           []SubmissionStage `json:"stages"`
	}
)
