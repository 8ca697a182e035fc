package service

import (
	"datasearch/dao/model"
	"datasearch/response"

	"github.com/gin-gonic/gin"
)

type SearchReq struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type SearchResult struct {
	ID            uint     `json:"id"`
	Source        string   `json:"source"`
	ExternalID    string   `json:"externalID"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	License       string   `json:"license"`
	DownloadCount int64    `json:"downloadCount"`
	LikeCount     int64    `json:"likeCount"`
	Score         float64  `json:"score"`
}

// Search matches enriched datasets by title substring.
func Search(c *gin.Context) {
	var req SearchReq
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	rows, err := datasets.SearchByTitle(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	results := make([]SearchResult, 0, len(rows))
	for i := range rows {
		results = append(results, toSearchResult(&rows[i]))
	}
	response.Success(c, results)
}

func toSearchResult(ds *model.Dataset) SearchResult {
	return SearchResult{
		ID:            ds.ID,
		Source:        ds.SourceName,
		ExternalID:    ds.ExternalID,
		Title:         ds.Title,
		URL:           ds.URL,
		Description:   ds.Description,
		Tags:          ds.Tags,
		License:       ds.License,
		DownloadCount: ds.DownloadCount,
		LikeCount:     ds.LikeCount,
		// Substring match carries no ranking signal.
		Score: 1,
	}
}

func RegisterSearch(apiGroup *gin.RouterGroup) {
	apiGroup.POST("/search", Search)
}
