package service

import (
	"net/http"
	"time"

	"datasearch/dao/model"
	"datasearch/dao/query"
	"datasearch/dao/store"
	"datasearch/ingest"
	"datasearch/response"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	sqlDB, err := query.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		response.HTTPError(c, http.StatusServiceUnavailable, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

type StatsResp struct {
	Sources  []store.SourceStats   `json:"sources"`
	Stages   []store.StageStats    `json:"stages"`
	Snapshot *ingest.SnapshotStats `json:"snapshot,omitempty"`
}

// Stats reports per-source dataset counts, enrichment outcomes over the
// last day, and the state of the cached catalog snapshot.
func Stats(c *gin.Context) {
	resp := StatsResp{}
	for _, source := range []string{model.SourceHuggingFace, model.SourceKaggle} {
		stats, err := datasets.StatsBySource(c.Request.Context(), source)
		if err != nil {
			response.Error(c, err.Error(), response.NotSpecified)
			return
		}
		resp.Sources = append(resp.Sources, *stats)
	}
	stages, err := logs.StatsByStageAndResult(c.Request.Context(), 24*time.Hour)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	resp.Stages = stages
	if snapshot != nil {
		if snap, err := snapshot.Stats(); err == nil {
			resp.Snapshot = snap
		}
	}
	response.Success(c, resp)
}

type SourceStatsReq struct {
	Source string `uri:"source" binding:"required"`
}

func SourceStatsHandler(c *gin.Context) {
	var req SourceStatsReq
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	stats, err := datasets.StatsBySource(c.Request.Context(), req.Source)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	response.Success(c, stats)
}

func RegisterSystem(apiGroup *gin.RouterGroup) {
	apiGroup.GET("/health", Health)
	apiGroup.GET("/stats", Stats)
	apiGroup.GET("/stats/:source", SourceStatsHandler)
}
