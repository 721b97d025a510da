package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/jobs"
	servermiddleware "github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/ratelimit"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/llm"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/upload"
)

const name = "github.com/hirelens/assessment-api/server/routes/v1"

var tracer = otel.Tracer(name)

// context keys populated by the route middleware
const (
	jobKey        = "job"
	assessmentKey = "assessment"
	instanceKey   = "instance"
	timeKey       = "time"
)

type Handler struct {
	DB           *gorm.DB
	config       *config.Config
	collaborator llm.Collaborator
	dispatcher   jobs.Dispatcher
	archiver     *upload.Archiver
	recorder     *audit.Recorder
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
) middleware.RateLimiterConfig {
	l := logger.Logger

	redisAddr := redisHost + ":6379"
	l.Debug("Setting up rate limiter with Redis", "redis", redisAddr, "limiter", limiterKey)
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	})

	return middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func NewHandler(
	db *gorm.DB,
	cfg *config.Config,
	collaborator llm.Collaborator,
	dispatcher jobs.Dispatcher,
	archiver *upload.Archiver,
	recorder *audit.Recorder,
) Handler {
	return Handler{
		DB:           db,
		config:       cfg,
		collaborator: collaborator,
		dispatcher:   dispatcher,
		archiver:     archiver,
		recorder:     recorder,
	}
}

func (h *Handler) sessionTTL() time.Duration {
	return h.config.Auth.SessionTTL
}

func (h *Handler) rateLimited(group *echo.Group, limiterKey string, perMinute int64) {
	if h.config.RateLimit == nil || perMinute <= 0 {
		logger.Logger.Warn("not configured to rate limit", "limiter", limiterKey)
		return
	}

	group.Use(middleware.RateLimiterWithConfig(NewRedisLimiter(
		h.config.RateLimit.RedisHost,
		limiterKey,
		perMinute,
		h.config.RateLimit.FailOpen,
	)))
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	v1Group := e.Group("/v1")

	var authPerMinute, candidatePerMinute int64
	if h.config.RateLimit != nil {
		authPerMinute = h.config.RateLimit.AuthPerMinute
		candidatePerMinute = h.config.RateLimit.CandidatePerMinute
	}

	authGroup := v1Group.Group("/auth")
	h.rateLimited(authGroup, "auth", authPerMinute)
	authGroup.POST("/register/", h.Register)
	authGroup.POST("/login/", h.Login)
	authGroup.POST("/magic-link/", h.RequestMagicLink)
	authGroup.POST("/magic-link/verify/", h.VerifyMagicLink)

	v1Group.GET("/me/", h.Me, middlewareHandler.HRAuth)
	v1Group.GET("/dashboard/", h.Dashboard, middlewareHandler.HRAuth)

	jobsGroup := v1Group.Group("/jobs", middlewareHandler.HRAuth)
	jobsGroup.POST("/", h.CreateJob)

	jobGroup := jobsGroup.Group(
		"/:job_id",
		servermiddleware.PopulateOwnedFromIDParam[models.Job](middlewareHandler, "job_id", jobKey),
	)
	jobGroup.GET("/", h.GetJob)
	jobGroup.DELETE("/", h.DeleteJob)
	jobGroup.POST("/parse/", h.ParseJobDescription)
	jobGroup.GET("/schema/", h.GetSchema)
	jobGroup.POST("/assessments/generate/", h.GenerateAssessment)
	jobGroup.GET("/results/", h.JobResults)
	jobGroup.POST("/status/", h.SetJobStatus)

	assessmentGroup := v1Group.Group(
		"/assessments/:assessment_id",
		middlewareHandler.HRAuth,
		servermiddleware.PopulateOwnedFromIDParam[models.Assessment](
			middlewareHandler,
			"assessment_id",
			assessmentKey,
		),
	)
	assessmentGroup.GET("/", h.GetAssessment)
	assessmentGroup.PATCH("/", h.UpdateAssessment)
	assessmentGroup.POST("/publish/", h.PublishAssessment)
	assessmentGroup.POST("/close/", h.CloseAssessment)
	assessmentGroup.POST("/reorder/", h.ReorderStage)
	assessmentGroup.PATCH("/questions/:question_id/", h.EditQuestion)
	assessmentGroup.POST("/invites/", h.IssueInvite)

	submissionGroup := v1Group.Group(
		"/submissions/:instance_id",
		middlewareHandler.HRAuth,
		servermiddleware.PopulateOwnedFromIDParam[models.TestInstance](
			middlewareHandler,
			"instance_id",
			instanceKey,
		),
	)
	submissionGroup.GET("/", h.GetSubmission)
	submissionGroup.POST("/override/", h.OverrideRecommendation)
	submissionGroup.POST("/rescore/", h.Rescore)

	inviteGroup := v1Group.Group("/invites")
	h.rateLimited(inviteGroup, "candidate", candidatePerMinute)
	inviteGroup.GET("/verify/", h.VerifyInvite)
	inviteGroup.POST("/:token/start/", h.StartTest)

	testGroup := v1Group.Group("/test/:instance_id")
	h.rateLimited(testGroup, "candidate", candidatePerMinute)
	testGroup.Use(
		servermiddleware.PopulateFromIDParam[models.TestInstance](middlewareHandler, "instance_id", instanceKey),
	)
	testGroup.GET("/questions/", h.StageQuestions)
	testGroup.POST("/answers/", h.SubmitAnswers)
	testGroup.POST("/end/", h.EndTest)
}
