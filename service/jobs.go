package service

import (
	"time"

	"datasearch/response"

	"github.com/gin-gonic/gin"
)

type SeedReq struct {
	Force           bool       `json:"force"`
	MinLastActivity *time.Time `json:"minLastActivity"`
}

// SeedJob ingests the bulk catalog snapshot. Runs synchronously and
// returns the ingestion report.
func SeedJob(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req SeedReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	report, err := orch.Seed(c.Request.Context(), req.Force, req.MinLastActivity)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, report)
}

type RefreshReq struct {
	Source string     `json:"source" binding:"required"`
	Limit  int        `json:"limit"`
	Cutoff *time.Time `json:"cutoff"`
}

func RefreshJob(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req RefreshReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = 1000
	}
	report, err := orch.Refresh(c.Request.Context(), req.Source, req.Limit, req.Cutoff)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, report)
}

type HydrateReq struct {
	Source string `json:"source" binding:"required"`
	Limit  int    `json:"limit"`
}

func HydrateJob(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req HydrateReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	report, err := orch.Hydrate(c.Request.Context(), req.Source, req.Limit)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, report)
}

type EmbedReq struct {
	Limit int `json:"limit"`
}

func EmbedJob(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	var req EmbedReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	report, err := orch.Embed(c.Request.Context(), req.Limit)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, report)
}

func ResetStaleJob(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}
	n, err := orch.ResetStale(c.Request.Context())
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}

func RegisterJobs(adminGroup *gin.RouterGroup) {
	adminGroup.POST("/jobs/seed", SeedJob)
	adminGroup.POST("/jobs/refresh", RefreshJob)
	adminGroup.POST("/jobs/hydrate", HydrateJob)
	adminGroup.POST("/jobs/embed", EmbedJob)
	adminGroup.POST("/jobs/reset-stale", ResetStaleJob)
}
