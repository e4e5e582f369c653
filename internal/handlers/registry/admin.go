package registry

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/storage"
)

type inviteCodeRequest struct {
	Code       string     `json:"code" binding:"required"`
	IsActive   *bool      `json:"isActive"`
	UsageLimit *uint      `json:"usageLimit"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Note       string     `json:"note"`
}

// apply copies the administrative fields. A missing isActive means active.
func (req *inviteCodeRequest) apply(code *models.InviteCode) {
	code.Code = req.Code
	code.IsActive = req.IsActive == nil || *req.IsActive
	code.UsageLimit = req.UsageLimit
	code.ExpiresAt = req.ExpiresAt
	code.Note = req.Note
}

type listResponse struct {
	Items []models.InviteCode `json:"items"`
}

func (r *Registry) handleCreate(c *gin.Context) {
	req := &inviteCodeRequest{}
	if err := c.ShouldBindJSON(req); err != nil || storage.NormalizeCode(req.Code) == "" {
		responseError(c, http.StatusBadRequest, "Missing code")
		return
	}

	code := &models.InviteCode{}
	req.apply(code)
	if err := storage.AddInviteCode(r.db, code); err != nil {
		responseDBError(c, err, "Failed to create invite code")
		return
	}

	logger.Info().
		Str("admin", c.GetString(KeyAdminSubject)).
		Str("id", code.ID).
		Str("code", code.Code).
		Msg("Invite code created")
	c.JSON(http.StatusCreated, code)
}

func (r *Registry) handleList(c *gin.Context) {
	items, err := storage.ListInviteCodes(r.db)
	if err != nil {
		responseDBError(c, err, "Failed to list invite codes")
		return
	}
	c.JSON(http.StatusOK, &listResponse{Items: items})
}

func (r *Registry) handleGet(c *gin.Context) {
	code, err := storage.GetInviteCodeByID(r.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			responseError(c, http.StatusNotFound, "Invite code not found")
			return
		}
		responseDBError(c, err, "Failed to get invite code")
		return
	}
	c.JSON(http.StatusOK, code)
}

func (r *Registry) handleUpdate(c *gin.Context) {
	req := &inviteCodeRequest{}
	if err := c.ShouldBindJSON(req); err != nil || storage.NormalizeCode(req.Code) == "" {
		responseError(c, http.StatusBadRequest, "Missing code")
		return
	}

	code, err := storage.GetInviteCodeByID(r.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			responseError(c, http.StatusNotFound, "Invite code not found")
			return
		}
		responseDBError(c, err, "Failed to get invite code")
		return
	}

	req.apply(code)
	if err := storage.UpdateInviteCode(r.db, code); err != nil {
		responseDBError(c, err, "Failed to update invite code")
		return
	}

	// re-read so the response carries the stored usage count and timestamps.
	code, err = storage.GetInviteCodeByID(r.db, code.ID)
	if err != nil {
		responseDBError(c, err, "Failed to get invite code")
		return
	}

	logger.Info().
		Str("admin", c.GetString(KeyAdminSubject)).
		Str("id", code.ID).
		Bool("active", code.IsActive).
		Msg("Invite code updated")
	c.JSON(http.StatusOK, code)
}

func (r *Registry) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := storage.DeleteInviteCode(r.db, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			responseError(c, http.StatusNotFound, "Invite code not found")
			return
		}
		responseDBError(c, err, "Failed to delete invite code")
		return
	}

	logger.Info().
		Str("admin", c.GetString(KeyAdminSubject)).
		Str("id", id).
		Msg("Invite code deleted")
	c.Status(http.StatusNoContent)
}

func (r *Registry) handleStats(c *gin.Context) {
	stats, err := storage.GetInviteCodeStats(r.db)
	if err != nil {
		responseDBError(c, err, "Failed to aggregate invite code usage")
		return
	}
	c.JSON(http.StatusOK, stats)
}
