package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/genjobs/internal/common"
	"github.com/suPer8Hu/genjobs/internal/genjob"
)

type submitJobReq struct {
	Kind     string            `json:"kind"`
	Prompt   string            `json:"prompt"`
	Keyword  string            `json:"keyword"`
	Context  map[string]string `json:"context"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Size     string            `json:"size"`
}

// SubmitJob stores a queued job and answers 202 with its id without waiting
// for generation.
func (h *Handler) SubmitJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	var req submitJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	in := genjob.Input{
		Kind:     genjob.Kind(req.Kind),
		Prompt:   req.Prompt,
		Keyword:  req.Keyword,
		Context:  req.Context,
		Provider: req.Provider,
		Model:    req.Model,
		Size:     req.Size,
	}
	job, created, err := h.Jobs.Submit(c.Request.Context(), uid, in, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.jobError(c, "SubmitJob", uid, "", err)
		return
	}

	common.Accepted(c, gin.H{
		"job_id":  job.ID,
		"status":  job.Status,
		"created": created,
	})
}

// GetJob is the poll endpoint.
func (h *Handler) GetJob(c *gin.Context) {
	h.fetch(c, c.Param("job_id"))
}

type fetchJobReq struct {
	JobID string `json:"job_id"`
}

// FetchJob is GetJob for clients that prefer a POST body.
func (h *Handler) FetchJob(c *gin.Context) {
	var req fetchJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.fetch(c, req.JobID)
}

func (h *Handler) fetch(c *gin.Context, jobID string) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Jobs.Get(c.Request.Context(), uid, jobID)
	if err != nil {
		h.jobError(c, "GetJob", uid, jobID, err)
		return
	}
	common.OK(c, gin.H{"job": j.View()})
}

func (h *Handler) ListJobs(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			common.Fail(c, http.StatusBadRequest, 10002, "invalid limit")
			return
		}
		limit = n
	}
	jobs, err := h.Jobs.List(c.Request.Context(), uid, genjob.Status(c.Query("status")), limit, c.Query("before_id"))
	if err != nil {
		h.jobError(c, "ListJobs", uid, "", err)
		return
	}

	views := make([]genjob.View, 0, len(jobs))
	for i := range jobs {
		v := jobs[i].View()
		// listings stay small
		v.PartialContent = nil
		v.ResultData = nil
		views = append(views, v)
	}
	next := ""
	if len(jobs) > 0 && len(jobs) == limit {
		next = jobs[len(jobs)-1].ID
	}
	common.OK(c, gin.H{"jobs": views, "next_before_id": next})
}

func (h *Handler) jobError(c *gin.Context, op string, uid uint64, jobID string, err error) {
	switch {
	case errors.Is(err, genjob.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, genjob.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
	default:
		h.Log.Error(op+" failed", "user_id", uid, "job_id", jobID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
