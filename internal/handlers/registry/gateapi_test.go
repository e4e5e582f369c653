package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleshuang3/membergate/internal/models"
	"github.com/charleshuang3/membergate/internal/paramstore"
	"github.com/charleshuang3/membergate/internal/registryclient"
	"github.com/charleshuang3/membergate/internal/storage"
)

func uintPtr(v uint) *uint { return &v }

func TestHandleFindByCode(t *testing.T) {
	testCases := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCodes  []string
	}{
		{
			name:           "exact match",
			query:          "?code=KENDO2024",
			expectedStatus: http.StatusOK,
			expectedCodes:  []string{"KENDO2024"},
		},
		{
			name:           "lower case and spaces",
			query:          "?code=%20kendo2024%20",
			expectedStatus: http.StatusOK,
			expectedCodes:  []string{"KENDO2024"},
		},
		{
			name:           "no match",
			query:          "?code=NOPE",
			expectedStatus: http.StatusOK,
			expectedCodes:  []string{},
		},
		{
			name:           "missing code",
			query:          "",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRegistry(t)
			env.addCode(t, &models.InviteCode{Code: "KENDO2024", IsActive: true, UsageCount: 5})
			env.addCode(t, &models.InviteCode{Code: "TOYAMA2024", IsActive: true})

			rec := env.do(t, http.MethodGet, "/v1/invite-codes"+tc.query, nil, apiKeyHeader())
			require.Equal(t, tc.expectedStatus, rec.Code, rec.Body.String())
			if tc.expectedStatus != http.StatusOK {
				return
			}

			resp := decode[registryclient.FindResponse](t, rec)
			codes := []string{}
			for _, item := range resp.Items {
				codes = append(codes, item.Code)
			}
			assert.Equal(t, tc.expectedCodes, codes)
		})
	}
}

func TestHandleSetUsage(t *testing.T) {
	testCases := []struct {
		name           string
		id             string
		body           any
		expectedStatus int
		expectedCount  uint
	}{
		{
			name:           "conditional write matches",
			id:             "code-kendo",
			body:           &registryclient.UsageRequest{UsageCount: 6, ExpectedUsageCount: uintPtr(5)},
			expectedStatus: http.StatusOK,
			expectedCount:  6,
		},
		{
			name:           "conditional write lost race",
			id:             "code-kendo",
			body:           &registryclient.UsageRequest{UsageCount: 5, ExpectedUsageCount: uintPtr(4)},
			expectedStatus: http.StatusConflict,
			expectedCount:  5,
		},
		{
			name:           "unconditional write",
			id:             "code-kendo",
			body:           &registryclient.UsageRequest{UsageCount: 42},
			expectedStatus: http.StatusOK,
			expectedCount:  42,
		},
		{
			name:           "unconditional write of the current value",
			id:             "code-kendo",
			body:           &registryclient.UsageRequest{UsageCount: 5},
			expectedStatus: http.StatusOK,
			expectedCount:  5,
		},
		{
			name:           "unknown id",
			id:             "missing",
			body:           &registryclient.UsageRequest{UsageCount: 1},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "malformed body",
			id:             "code-kendo",
			body:           `{"usageCount": "six"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestRegistry(t)
			env.addCode(t, &models.InviteCode{ID: "code-kendo", Code: "KENDO2024", IsActive: true, UsageCount: 5})

			rec := env.do(t, http.MethodPatch, "/v1/invite-codes/"+tc.id+"/usage", tc.body, apiKeyHeader())
			require.Equal(t, tc.expectedStatus, rec.Code, rec.Body.String())

			switch tc.expectedStatus {
			case http.StatusOK:
				assert.Equal(t, tc.expectedCount, decode[models.InviteCode](t, rec).UsageCount)
			case http.StatusConflict:
				assert.Equal(t, tc.expectedCount, decode[registryclient.ConflictResponse](t, rec).Current.UsageCount)
			}

			if tc.id == "code-kendo" {
				stored, err := storage.GetInviteCodeByID(env.db, tc.id)
				require.NoError(t, err)
				if tc.expectedStatus == http.StatusOK {
					assert.Equal(t, tc.expectedCount, stored.UsageCount)
				} else {
					assert.Equal(t, uint(5), stored.UsageCount)
				}
			}
		})
	}
}

func TestGateAPI_WithClient(t *testing.T) {
	env := setupTestRegistry(t)
	env.addCode(t, &models.InviteCode{
		ID:         "code-old",
		Code:       "OLD2020",
		IsActive:   true,
		UsageLimit: uintPtr(10),
		UsageCount: 9,
	})

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	remote := paramstore.RemoteConfig{Endpoint: srv.URL + "/", Credential: testAPIKey}
	client := registryclient.New(srv.Client())
	ctx := context.Background()

	record, err := client.FindByCode(ctx, remote, "old2020")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "code-old", record.ID)
	assert.Equal(t, uint(9), record.UsageCount)

	record, err = client.FindByCode(ctx, remote, "UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, record)

	err = client.SetUsageCount(ctx, remote, "code-old", uintPtr(9), 10)
	require.NoError(t, err)

	// a second writer that also observed 9 must be told the count moved on.
	err = client.SetUsageCount(ctx, remote, "code-old", uintPtr(9), 10)
	var conflict *registryclient.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint(10), conflict.Current)

	_, err = client.FindByCode(ctx, paramstore.RemoteConfig{Endpoint: srv.URL, Credential: "wrong"}, "OLD2020")
	var statusErr *registryclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}
