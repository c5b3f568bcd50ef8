package handler

import (
	"github.com/gin-gonic/gin"

	"marketgw/internal/hub"
	"marketgw/internal/market"
	"marketgw/internal/quotecache"
	"marketgw/internal/service"
)

type StatsHandler struct {
	Stats *service.StatsService
	Cache *quotecache.Cache
	Mux   *hub.Multiplexer
}

func (h *StatsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stats/collection", h.collection)
	r.GET("/api/v1/stats/cache", h.cache)
}

// @Summary Per-contract bar collection coverage
// @Tags stats
// @Param symbol query string false "Filter by symbol"
// @Success 200 {object} apiResponse
// @Router /api/v1/stats/collection [get]
func (h *StatsHandler) collection(c *gin.Context) {
	items, err := h.Stats.CollectionStats(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		Error(c, statusForKind(market.KindOf(err)), err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Cache and streaming hit statistics
// @Tags stats
// @Success 200 {object} apiResponse
// @Router /api/v1/stats/cache [get]
func (h *StatsHandler) cache(c *gin.Context) {
	data := map[string]any{"redis": nil}
	if h.Cache != nil {
		data["redis"] = h.Cache.Stats()
	}
	if h.Mux != nil {
		data["stream"] = h.Mux.CurrentStats()
	}
	Ok(c, data, nil)
}
