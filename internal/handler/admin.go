package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketgw/internal/market"
	"marketgw/internal/quotecache"
	"marketgw/internal/service"
)

type AdminHandler struct {
	Retention *service.RetentionService
	Cache     *quotecache.Cache
}

func (h *AdminHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/admin/clean", h.clean)
	r.POST("/api/v1/admin/cache/clear", h.clearCache)
}

// @Summary Run retention cleanup now
// @Tags admin
// @Success 200 {object} apiResponse
// @Router /api/v1/admin/clean [post]
func (h *AdminHandler) clean(c *gin.Context) {
	result, err := h.Retention.CleanOldData(c.Request.Context())
	if err != nil {
		Error(c, statusForKind(market.KindOf(err)), err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

// @Summary Clear cached history or quote entries
// @Tags admin
// @Param scope query string false "all, history or quote" default(all)
// @Success 200 {object} apiResponse
// @Router /api/v1/admin/cache/clear [post]
func (h *AdminHandler) clearCache(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusServiceUnavailable, "cache is not enabled", nil)
		return
	}
	scope := c.DefaultQuery("scope", "all")
	switch scope {
	case "all", "history", "quote":
	default:
		Error(c, http.StatusBadRequest, "scope must be all, history or quote", nil)
		return
	}
	removed, err := h.Cache.Clear(c.Request.Context(), scope)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"removed": removed, "scope": scope}, nil)
}
