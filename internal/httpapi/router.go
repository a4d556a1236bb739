package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/suPer8Hu/genjobs/internal/common"
	"github.com/suPer8Hu/genjobs/internal/httpapi/handlers"
	"github.com/suPer8Hu/genjobs/internal/httpapi/middleware"
)

type RouterDeps struct {
	Handler *handlers.Handler
	// nil disables submission rate limiting
	Limiter     middleware.Limiter
	ServiceName string
}

func NewRouter(deps RouterDeps) *gin.Engine {
	h := deps.Handler
	cfg := h.Cfg

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(h.Log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(deps.ServiceName))
	r.Use(middleware.RequestLogger(h.Log))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.GET("/ping", h.Ping)

	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// generation jobs (JWT required)
	submitLimit := middleware.RateLimit(deps.Limiter, "submit", cfg.SubmitRateLimit, cfg.SubmitRateWindow, h.Log)
	authGroup.POST("/jobs", submitLimit, h.SubmitJob)
	authGroup.GET("/jobs", h.ListJobs)
	authGroup.GET("/jobs/:job_id", h.GetJob)
	authGroup.POST("/jobs/fetch", h.FetchJob)
	return r
}
