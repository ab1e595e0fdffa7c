package clipped

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"couponhub/internal/provider"
)

type Handler struct {
	Cache    *Cache
	Identity provider.Identity
}

func NewHandler(cache *Cache, identity provider.Identity) *Handler {
	return &Handler{Cache: cache, Identity: identity}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/clipped", h.list)
	rg.GET("/clipped/:id", h.isClipped)
	rg.POST("/clipped/:id", h.clip)
	rg.POST("/reload", h.reload)
	rg.POST("/sweep", h.sweep)
}

func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": h.Cache.State(),
		"items": h.Cache.All(),
	})
}

func (h *Handler) isClipped(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":      c.Param("id"),
		"clipped": h.Cache.IsClipped(c.Param("id")),
	})
}

// clip is the one place where sign-up is triggered implicitly by a user
// action: without tokens the UI is told to open the sign-up flow instead
// of the gateway being called at all.
func (h *Handler) clip(c *gin.Context) {
	if !h.Identity.HasTokens() {
		c.JSON(http.StatusUnauthorized, gin.H{"signup_required": true})
		return
	}

	id := c.Param("id")
	if err := h.Cache.Clip(c.Request.Context(), id); err != nil {
		if errors.Is(err, provider.ErrCouponUnavailable) {
			c.JSON(http.StatusConflict, gin.H{"error": provider.CouponUnavailableMessage})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "clip failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "clipped": true})
}

func (h *Handler) reload(c *gin.Context) {
	ok := h.Cache.Load(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"loaded": ok, "state": h.Cache.State()})
}

func (h *Handler) sweep(c *gin.Context) {
	if err := h.Cache.Sweep(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": h.Cache.All()})
}
