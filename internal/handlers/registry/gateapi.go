package registry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charleshuang3/membergate/internal/registryclient"
	"github.com/charleshuang3/membergate/internal/storage"
)

func (r *Registry) handleFindByCode(c *gin.Context) {
	code := storage.NormalizeCode(c.Query("code"))
	if code == "" {
		responseError(c, http.StatusBadRequest, "Missing code")
		return
	}

	items, err := storage.FindInviteCodesByCode(r.db, code)
	if err != nil {
		responseDBError(c, err, "Failed to find invite codes")
		return
	}

	c.JSON(http.StatusOK, &registryclient.FindResponse{Items: items})
}

func (r *Registry) handleSetUsage(c *gin.Context) {
	req := &registryclient.UsageRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		responseError(c, http.StatusBadRequest, "Invalid usage request")
		return
	}

	id := c.Param("id")
	record, err := storage.SetInviteCodeUsage(r.db, id, req.ExpectedUsageCount, req.UsageCount)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, record)
	case errors.Is(err, gorm.ErrRecordNotFound):
		responseError(c, http.StatusNotFound, "Invite code not found")
	case errors.Is(err, storage.ErrUsageConflict):
		l := logger.Info().Str("id", id).Uint("current", record.UsageCount)
		if req.ExpectedUsageCount != nil {
			l = l.Uint("expected", *req.ExpectedUsageCount)
		}
		l.Msg("Usage update lost a race")
		c.JSON(http.StatusConflict, &registryclient.ConflictResponse{Current: *record})
	default:
		responseDBError(c, err, "Failed to set usage count")
	}
}
