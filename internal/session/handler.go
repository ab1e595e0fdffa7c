package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"couponhub/internal/provider"
	"couponhub/pkg/models"
)

type Handler struct {
	Manager *Manager
	Tokens  TokenService
}

func NewHandler(m *Manager, tokens TokenService) *Handler {
	return &Handler{Manager: m, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/request-code", h.requestCode)
	rg.POST("/verify", h.verify)
	rg.PUT("/store", h.setStore)
	rg.PUT("/profile", AuthMiddleware(h.Tokens), h.updateProfile)
	rg.POST("/signout", AuthMiddleware(h.Tokens), h.signOut)
	rg.GET("/me", AuthMiddleware(h.Tokens), h.me)
}

type requestCodeReq struct {
	PhoneNumber string `json:"phone_number"`
}

func (h *Handler) requestCode(c *gin.Context) {
	var req requestCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if err := h.Manager.RequestCode(c.Request.Context(), req.PhoneNumber); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "code_sent"})
}

type verifyReq struct {
	PhoneNumber string `json:"phone_number"`
	Pin         string `json:"pin"`
}

func (h *Handler) verify(c *gin.Context) {
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	profile, err := h.Manager.VerifyCode(c.Request.Context(), req.PhoneNumber, req.Pin)
	if err != nil {
		writeSessionError(c, err)
		return
	}

	token, exp, err := h.Tokens.Sign(h.Manager.CardNumber(), h.Manager.LoyaltyNumber())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": exp,
		"profile":    profile,
	})
}

type setStoreReq struct {
	StoreID string `json:"store_id"`
}

func (h *Handler) setStore(c *gin.Context) {
	var req setStoreReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.StoreID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "store_id is required"})
		return
	}

	h.Manager.SetStore(strings.TrimSpace(req.StoreID))
	c.JSON(http.StatusOK, gin.H{"store_id": h.Manager.StoreID()})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var profile models.Profile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if err := h.Manager.UpdateProfile(c.Request.Context(), profile); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) signOut(c *gin.Context) {
	h.Manager.SignOut()
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"phase":          h.Manager.Phase(),
		"card_number":    h.Manager.CardNumber(),
		"loyalty_number": h.Manager.LoyaltyNumber(),
		"first_name":     h.Manager.FirstName(),
		"store_id":       h.Manager.StoreID(),
	})
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotSignedIn):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case provider.IsTransportFailure(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider unreachable"})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	}
}
