package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"marketgw/internal/market"
	"marketgw/internal/service"
)

type HistoryHandler struct {
	History *service.HistoryService
}

func (h *HistoryHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/history", h.history)
}

// @Summary Historical bars for a contract
// @Tags history
// @Param symbol query string true "Instrument symbol"
// @Param timeframe query string true "Bar timeframe, e.g. 5m or 1d"
// @Param start query string true "Range start, RFC3339"
// @Param end query string true "Range end, RFC3339"
// @Param sec_type query string false "Security type, default STK"
// @Param exchange query string false "Exchange, default SMART"
// @Param currency query string false "Currency, default USD"
// @Param indicators query bool false "Attach technical indicators"
// @Success 200 {object} apiResponse
// @Router /api/v1/history [get]
func (h *HistoryHandler) history(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		Error(c, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	tf, err := market.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		Error(c, http.StatusBadRequest, "start must be RFC3339", nil)
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		Error(c, http.StatusBadRequest, "end must be RFC3339", nil)
		return
	}
	indicators, _ := strconv.ParseBool(c.DefaultQuery("indicators", "false"))

	req := service.HistoryRequest{
		Spec: market.ContractSpec{
			Symbol:   symbol,
			SecType:  c.Query("sec_type"),
			Exchange: c.Query("exchange"),
			Currency: c.Query("currency"),
			Expiry:   c.Query("expiry"),
			Right:    c.Query("right"),
		},
		Timeframe:         tf,
		Start:             start,
		End:               end,
		IncludeIndicators: indicators,
	}
	result, err := h.History.GetHistoricalData(c.Request.Context(), req)
	if err != nil {
		Error(c, statusForKind(market.KindOf(err)), err.Error(), nil)
		return
	}
	meta := map[string]any{"source": result.Source}
	if result.Degraded {
		meta["degraded"] = true
		meta["warning"] = "store unavailable, served directly from upstream"
	}
	Ok(c, result, meta)
}

func statusForKind(kind market.Kind) int {
	switch kind {
	case market.KindInvalidRange:
		return http.StatusBadRequest
	case market.KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	case market.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case market.KindUpstreamUnavailable, market.KindUpstreamSubscribeFailed, market.KindContractResolutionFailed:
		return http.StatusBadGateway
	case market.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
