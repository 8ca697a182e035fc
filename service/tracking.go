package service

import (
	"errors"
	"net/http"

	"datasearch/logutils"
	"datasearch/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type VisitReq struct {
	ID uint `uri:"id" binding:"required"`
}

// Visit records that a dataset page was opened and redirects the client
// to the dataset's upstream URL.
func Visit(c *gin.Context) {
	var req VisitReq
	if err := c.ShouldBindUri(&req); err != nil {
		response.BadRequestError(c, err.Error())
		return
	}
	ds, err := datasets.GetByID(c.Request.Context(), req.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.HTTPError(c, http.StatusNotFound, "dataset not found", response.NotFound)
		return
	}
	if err != nil {
		response.Error(c, err.Error(), response.NotSpecified)
		return
	}
	if !ds.IsActive || ds.URL == "" {
		response.HTTPError(c, http.StatusNotFound, "dataset not available", response.NotFound)
		return
	}
	if err := datasets.TouchLastChecked(c.Request.Context(), ds.ID); err != nil {
		logutils.Log.Errorf("touch last checked %d: %v", ds.ID, err)
	}
	c.Redirect(http.StatusFound, ds.URL)
}

func RegisterTracking(apiGroup *gin.RouterGroup) {
	apiGroup.GET("/visit/:id", Visit)
}
