package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/membergate/internal/gormw"
	"github.com/charleshuang3/membergate/internal/models"
)

func setupTestDB(t *testing.T) *gormw.DB {
	t.Helper()
	db, err := gormw.Open(&gormw.Config{
		LogLevel: gormlog.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return db
}

func uintPtr(v uint) *uint { return &v }

func TestAddInviteCode(t *testing.T) {
	db := setupTestDB(t)

	code := &models.InviteCode{Code: " kendo2024 ", IsActive: true}
	require.NoError(t, AddInviteCode(db, code))
	assert.NotEmpty(t, code.ID)
	assert.Equal(t, "KENDO2024", code.Code)

	got, err := GetInviteCodeByID(db, code.ID)
	require.NoError(t, err)
	assert.Equal(t, "KENDO2024", got.Code)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.UsageLimit)
	assert.Nil(t, got.ExpiresAt)
}

func TestFindInviteCodesByCode(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, AddInviteCode(db, &models.InviteCode{Code: "KENDO2024", IsActive: true}))
	require.NoError(t, AddInviteCode(db, &models.InviteCode{Code: "TOYAMA2024", IsActive: true}))

	found, err := FindInviteCodesByCode(db, "KENDO2024")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "KENDO2024", found[0].Code)

	found, err = FindInviteCodesByCode(db, "NOPE")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdateInviteCode_KeepsUsageCount(t *testing.T) {
	db := setupTestDB(t)
	code := &models.InviteCode{Code: "KENDO2024", IsActive: true, UsageCount: 3, UsageLimit: uintPtr(10)}
	require.NoError(t, AddInviteCode(db, code))

	update := &models.InviteCode{
		ID:         code.ID,
		Code:       "kendo2025",
		IsActive:   false,
		UsageLimit: nil,
		UsageCount: 99,
		Note:       "renamed",
	}
	require.NoError(t, UpdateInviteCode(db, update))

	got, err := GetInviteCodeByID(db, code.ID)
	require.NoError(t, err)
	assert.Equal(t, "KENDO2025", got.Code)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.UsageLimit)
	assert.Equal(t, uint(3), got.UsageCount)
	assert.Equal(t, "renamed", got.Note)
}

func TestDeleteInviteCode(t *testing.T) {
	db := setupTestDB(t)
	code := &models.InviteCode{Code: "KENDO2024", IsActive: true}
	require.NoError(t, AddInviteCode(db, code))

	require.NoError(t, DeleteInviteCode(db, code.ID))

	_, err := GetInviteCodeByID(db, code.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	err = DeleteInviteCode(db, code.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSetInviteCodeUsage(t *testing.T) {
	testCases := []struct {
		name          string
		expected      *uint
		next          uint
		wantErr       error
		wantCount     uint
		missingRecord bool
	}{
		{
			name:      "unconditional write",
			expected:  nil,
			next:      6,
			wantCount: 6,
		},
		{
			name:      "unconditional write of the current value",
			expected:  nil,
			next:      5,
			wantCount: 5,
		},
		{
			name:      "conditional write matches",
			expected:  uintPtr(5),
			next:      6,
			wantCount: 6,
		},
		{
			name:      "conditional write conflicts",
			expected:  uintPtr(4),
			next:      5,
			wantErr:   ErrUsageConflict,
			wantCount: 5,
		},
		{
			name:          "missing record",
			expected:      uintPtr(5),
			next:          6,
			wantErr:       gorm.ErrRecordNotFound,
			missingRecord: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			code := &models.InviteCode{Code: "KENDO2024", IsActive: true, UsageCount: 5}
			require.NoError(t, AddInviteCode(db, code))

			id := code.ID
			if tc.missingRecord {
				id = "missing"
			}

			current, err := SetInviteCodeUsage(db, id, tc.expected, tc.next)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			if tc.missingRecord {
				return
			}
			require.NotNil(t, current)
			assert.Equal(t, tc.wantCount, current.UsageCount)
		})
	}
}

func TestGetInviteCodeStats(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, AddInviteCode(db, &models.InviteCode{Code: "A", IsActive: true, UsageCount: 2}))
	require.NoError(t, AddInviteCode(db, &models.InviteCode{Code: "B", IsActive: false, UsageCount: 3}))
	require.NoError(t, AddInviteCode(db, &models.InviteCode{Code: "C", IsActive: true}))

	stats, err := GetInviteCodeStats(db)
	require.NoError(t, err)
	assert.Equal(t, &InviteCodeStats{Total: 3, Active: 2, TotalUsage: 5}, stats)
}

func TestDeactivateExpiredInviteCodes(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()
	longAgo := now.AddDate(0, 0, -3)
	soon := now.AddDate(0, 0, 3)

	expired := &models.InviteCode{Code: "OLD2020", IsActive: true, ExpiresAt: &longAgo}
	fresh := &models.InviteCode{Code: "NEW2030", IsActive: true, ExpiresAt: &soon}
	forever := &models.InviteCode{Code: "KENDO2024", IsActive: true}
	for _, c := range []*models.InviteCode{expired, fresh, forever} {
		require.NoError(t, AddInviteCode(db, c))
	}

	n, err := DeactivateExpiredInviteCodes(db, now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := GetInviteCodeByID(db, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	for _, c := range []*models.InviteCode{fresh, forever} {
		got, err := GetInviteCodeByID(db, c.ID)
		require.NoError(t, err)
		assert.True(t, got.IsActive, c.Code)
	}
}
