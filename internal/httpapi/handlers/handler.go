package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/suPer8Hu/genjobs/internal/common"
	"github.com/suPer8Hu/genjobs/internal/config"
	"github.com/suPer8Hu/genjobs/internal/genjob"
	"github.com/suPer8Hu/genjobs/internal/httpapi/middleware"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

type Handler struct {
	DB   *gorm.DB
	Cfg  config.Config
	Log  *logger.Logger
	Jobs *genjob.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, log *logger.Logger, jobs *genjob.Service) *Handler {
	return &Handler{DB: db, Cfg: cfg, Log: log.With("component", "HTTP"), Jobs: jobs}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	return middleware.UserID(c)
}

func unauthorized(c *gin.Context) {
	common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
}
