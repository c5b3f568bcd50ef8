package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketgw/internal/market"
	"marketgw/internal/service"
)

type QuoteHandler struct {
	Quotes *service.QuoteService
}

func (h *QuoteHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/quote/:symbol", h.quote)
	r.GET("/api/v1/contracts/search", h.search)
}

// @Summary Latest quote snapshot for a symbol
// @Tags quote
// @Param symbol path string true "Instrument symbol"
// @Success 200 {object} apiResponse
// @Router /api/v1/quote/{symbol} [get]
func (h *QuoteHandler) quote(c *gin.Context) {
	symbol := c.Param("symbol")
	if symbol == "" {
		Error(c, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	result, err := h.Quotes.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		Error(c, statusForKind(market.KindOf(err)), err.Error(), nil)
		return
	}
	Ok(c, result.Quote, map[string]any{"source": result.Source})
}

// @Summary Search tradable contracts by symbol or name
// @Tags quote
// @Param q query string true "Search text"
// @Success 200 {object} apiResponse
// @Router /api/v1/contracts/search [get]
func (h *QuoteHandler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		Error(c, http.StatusBadRequest, "q is required", nil)
		return
	}
	specs, err := h.Quotes.SearchContracts(c.Request.Context(), query)
	if err != nil {
		Error(c, statusForKind(market.KindOf(err)), err.Error(), nil)
		return
	}
	Ok(c, specs, map[string]any{"count": len(specs)})
}
