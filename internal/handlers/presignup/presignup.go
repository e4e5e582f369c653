// Package presignup serves the identity provider's pre-signup trigger.
package presignup

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/membergate/internal/admission"
)

var (
	logger = log.With().Str("component", "presignup").Logger()
)

const (
	reasonInvalidRequest = "invalid request"

	emailAttribute = "email"
)

type Admitter interface {
	Admit(ctx context.Context, req *admission.SignupRequest) admission.Verdict
}

// event is the part of the trigger payload the gate reads. The rest is echoed
// back untouched.
type event struct {
	UserName   string `json:"userName"`
	UserPoolID string `json:"userPoolId"`
	Request    struct {
		UserAttributes map[string]string `json:"userAttributes"`
		ClientMetadata map[string]string `json:"clientMetadata"`
	} `json:"request"`
}

type Handler struct {
	gate      Admitter
	hookToken string
}

// New creates the handler. An empty hookToken leaves the endpoint open.
func New(gate Admitter, hookToken string) *Handler {
	if hookToken == "" {
		logger.Warn().Msg("hook_token not set, pre-signup endpoint accepts any caller")
	}
	return &Handler{
		gate:      gate,
		hookToken: hookToken,
	}
}

func (h *Handler) RegisterHandlers(rg *gin.RouterGroup) {
	rg.POST("/hooks/pre-signup", h.handlePreSignup)
}

func (h *Handler) authorized(c *gin.Context) bool {
	if h.hookToken == "" {
		return true
	}
	got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(h.hookToken)) == 1
}

func (h *Handler) handlePreSignup(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": reasonInvalidRequest})
		return
	}

	ev := &event{}
	if err := json.Unmarshal(raw, ev); err != nil {
		logger.Warn().Err(err).Msg("Malformed pre-signup payload")
		c.JSON(http.StatusBadRequest, gin.H{"message": reasonInvalidRequest})
		return
	}

	req := &admission.SignupRequest{
		Username:       ev.UserName,
		UserPoolID:     ev.UserPoolID,
		UserAttributes: ev.Request.UserAttributes,
		ClientMetadata: ev.Request.ClientMetadata,
	}

	// only the invitation code decides admission, an odd email is just noted.
	if email := req.UserAttributes[emailAttribute]; email != "" {
		if err := checkmail.ValidateFormat(email); err != nil {
			logger.Warn().Err(err).Str("username", req.Username).Msg("Signup with unusual email format")
		}
	}

	v := h.gate.Admit(c.Request.Context(), req)
	if !v.Admitted {
		c.JSON(http.StatusBadRequest, gin.H{"message": v.Reason})
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
