package service

import (
	"fmt"
	"net/http"
	"strings"

	"datasearch/dao/store"
	"datasearch/enrich"
	"datasearch/ingest"
	"datasearch/response"
	"datasearch/util"

	"github.com/gin-gonic/gin"
)

var (
	datasets *store.DatasetStore
	logs     *store.EnrichmentLogStore
	orch     *enrich.Orchestrator
	snapshot *ingest.SnapshotParser
)

// Init wires the handlers to their collaborators. Must be called before
// registering any route group.
func Init(d *store.DatasetStore, l *store.EnrichmentLogStore, o *enrich.Orchestrator, snap *ingest.SnapshotParser) {
	datasets = d
	logs = l
	orch = o
	snapshot = snap
}

func CheckJWTToken(c *gin.Context) (util.JWTMessage, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return util.JWTMessage{}, fmt.Errorf("missing Authorization header")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return util.JWTMessage{}, fmt.Errorf("Authorization header is not a bearer token")
	}
	return util.GetTokenMgr().CheckToken(token)
}

func requireAdmin(c *gin.Context) bool {
	jwttoken, err := CheckJWTToken(c)
	if err != nil {
		response.HTTPError(c, http.StatusUnauthorized, err.Error(), response.InvalidToken)
		return false
	}
	if jwttoken.Role != util.RoleAdmin {
		response.HTTPError(c, http.StatusUnauthorized, "Your Role is not admin", response.NotSpecified)
		return false
	}
	return true
}
