package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/charleshuang3/membergate/internal/gormw"
	"github.com/charleshuang3/membergate/internal/models"
)

var (
	logger = log.With().Str("component", "storage").Logger()

	// ErrUsageConflict is returned by SetInviteCodeUsage when the stored usage
	// count no longer matches the expected one.
	ErrUsageConflict = errors.New("invite code usage count changed")
)

// NormalizeCode upper-cases and trims a code the way issuers write them.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func AddInviteCode(db *gormw.DB, code *models.InviteCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	code.Code = NormalizeCode(code.Code)
	return db.Create(code).Error
}

func GetInviteCodeByID(db *gormw.DB, id string) (*models.InviteCode, error) {
	res := &models.InviteCode{}
	if err := db.Where("id = ?", id).First(res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// FindInviteCodesByCode returns every record with exactly this code. Codes are
// unique in practice, callers should use the first one.
func FindInviteCodesByCode(db *gormw.DB, code string) ([]models.InviteCode, error) {
	res := []models.InviteCode{}
	err := db.Where("code = ?", code).Order("created_at").Find(&res).Error
	return res, err
}

func ListInviteCodes(db *gormw.DB) ([]models.InviteCode, error) {
	res := []models.InviteCode{}
	err := db.Order("created_at DESC").Find(&res).Error
	return res, err
}

// UpdateInviteCode saves the administrative fields. UsageCount is left alone,
// it belongs to the admission path.
func UpdateInviteCode(db *gormw.DB, code *models.InviteCode) error {
	code.Code = NormalizeCode(code.Code)
	return db.Model(code).
		Select("code", "is_active", "usage_limit", "expires_at", "note").
		Updates(code).Error
}

func DeleteInviteCode(db *gormw.DB, id string) error {
	res := db.Where("id = ?", id).Delete(&models.InviteCode{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetInviteCodeUsage writes next as the usage count. When expected is not nil
// the write only happens if the stored count still equals *expected, otherwise
// the current record is returned along with ErrUsageConflict. An
// unconditional write never conflicts.
func SetInviteCodeUsage(db *gormw.DB, id string, expected *uint, next uint) (*models.InviteCode, error) {
	q := db.Model(&models.InviteCode{}).Where("id = ?", id)
	if expected != nil {
		q = q.Where("usage_count = ?", *expected)
	}

	res := q.Update("usage_count", next)
	if res.Error != nil {
		return nil, res.Error
	}

	current, err := GetInviteCodeByID(db, id)
	if err != nil {
		return nil, err
	}
	if expected != nil && res.RowsAffected == 0 {
		return current, ErrUsageConflict
	}
	return current, nil
}

type InviteCodeStats struct {
	Total      int64 `json:"total"`
	Active     int64 `json:"active"`
	TotalUsage int64 `json:"totalUsage"`
}

func GetInviteCodeStats(db *gormw.DB) (*InviteCodeStats, error) {
	stats := &InviteCodeStats{}
	if err := db.Model(&models.InviteCode{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.InviteCode{}).Where("is_active = ?", true).Count(&stats.Active).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.InviteCode{}).Select("COALESCE(SUM(usage_count), 0)").Scan(&stats.TotalUsage).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// DeactivateExpiredInviteCodes turns off active codes that expired before the
// given time and returns how many were changed.
func DeactivateExpiredInviteCodes(db *gormw.DB, before time.Time) (int64, error) {
	res := db.Model(&models.InviteCode{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, before).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// Expired codes are already refused at admission, the job only keeps the
// admin listing honest.
func RegisterExpiredInviteCodesDeactivator(scheduler gocron.Scheduler, db *gormw.DB) {
	_, _ = scheduler.NewJob(
		gocron.CronJob(
			// 4am Daily
			"0 4 * * *",
			false,
		),
		gocron.NewTask(
			func() {
				yesterday := time.Now().AddDate(0, 0, -1)
				n, err := DeactivateExpiredInviteCodes(db, yesterday)
				if err != nil {
					logger.Error().Err(err).Msg("Failed to deactivate expired invite codes")
					return
				}
				logger.Info().Int64("count", n).Msg("Deactivated expired invite codes")
			},
		),
	)
}
