package firewall

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHandlers adds manual ban and error reporting. Mount it behind admin
// auth.
func (f *Firewall) RegisterHandlers(rg *gin.RouterGroup) {
	rg.POST("/bans", f.ban)
	rg.POST("/errors", f.logError)
}

type reportRequest struct {
	IP     string `json:"ip" binding:"required,ip"`
	Reason string `json:"reason" binding:"required"`
}

func (f *Firewall) ban(c *gin.Context) {
	req := &reportRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "ip and reason are required"})
		return
	}

	logger.Info().Str("ip", req.IP).Str("reason", req.Reason).Msg("Manual ban")
	f.fw.BanIP(req.IP, int(f.conf.BanMinutes), req.Reason)
	c.Status(http.StatusNoContent)
}

func (f *Firewall) logError(c *gin.Context) {
	req := &reportRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "ip and reason are required"})
		return
	}

	f.fw.LogIPError(req.IP, req.Reason)
	c.Status(http.StatusNoContent)
}
