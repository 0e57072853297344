package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sofialabs/sofia-bot/internal/auth"
	"github.com/sofialabs/sofia-bot/internal/common"
)

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Username != h.Cfg.OpsUser || h.opsPasswordHash == "" ||
		!auth.CheckPassword(h.opsPasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40104, "bad credentials")
		return
	}

	token, err := auth.SignJWT(req.Username, h.Cfg.JWTSecret, h.Cfg.TokenLifetime)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.OK(c, gin.H{"token": token})
}

// GetUser exposes one user row for support inspection.
func (h *Handler) GetUser(c *gin.Context) {
	userID := c.Param("id")

	u, err := h.Users.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, u)
}

// GetUserSubscription runs a live resolution for a user, bypassing nothing:
// the same cascade the pipeline uses. Support tool for "why am I gated".
func (h *Handler) GetUserSubscription(c *gin.Context) {
	userID := c.Param("id")
	subscribed := h.Resolver.Resolve(c.Request.Context(), userID)
	common.OK(c, gin.H{"user_id": userID, "subscribed": subscribed})
}

// GetUserTurns returns the most recent conversation turns for a user.
func (h *Handler) GetUserTurns(c *gin.Context) {
	userID := c.Param("id")
	turns, err := h.Turns.RecentTurnsDesc(c.Request.Context(), userID, h.Cfg.ContextLimit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"turns": turns})
}
