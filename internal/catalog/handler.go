package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"couponhub/internal/provider"
)

type Handler struct {
	Loader *Loader
}

func NewHandler(loader *Loader) *Handler {
	return &Handler{Loader: loader}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/categories", h.categories)
	rg.GET("/coupons", h.coupons)
	rg.GET("/coupons/search", h.search)
	rg.GET("/coupons/weekly-specials", h.weeklySpecials)
}

func (h *Handler) categories(c *gin.Context) {
	cats, err := h.Loader.FetchCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "categories unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (h *Handler) coupons(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	category := c.Query("category")

	page, err := h.Loader.FetchByCategoryName(c.Request.Context(), category, limit, offset)
	if err != nil {
		writeFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) search(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.Loader.Search(c.Request.Context(), term, limit, offset)
	if err != nil {
		writeFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func writeFetchError(c *gin.Context, err error) {
	if provider.IsMissingConfiguration(err) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "store or identity not configured"})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": "provider unavailable"})
}

func (h *Handler) weeklySpecials(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.Loader.FetchWeeklySpecials(c.Request.Context(), limit, offset)
	if err != nil {
		writeFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
