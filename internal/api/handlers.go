package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quakewatch/quakewatch/internal/models"
	"github.com/quakewatch/quakewatch/internal/report"
	"github.com/quakewatch/quakewatch/internal/services"
	"github.com/quakewatch/quakewatch/internal/utils"
)

const defaultLimit = 100

type handlers struct {
	service *services.QuakeService
	logger  *slog.Logger
}

func newHandlers(service *services.QuakeService, logger *slog.Logger) *handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &handlers{service: service, logger: logger}
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/healthz", h.health)

	v1 := router.Group("/api/v1")
	v1.GET("/earthquakes", h.listEarthquakes)
	v1.POST("/fetch", h.startFetch)
	v1.POST("/cancel", h.cancelFetch)
	v1.GET("/stream", h.stream)
	v1.GET("/charts/daily.png", h.dailyChart)
	v1.GET("/charts/magnitude.png", h.magnitudeChart)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// listEarthquakes resolves the filter synchronously and returns records plus
// summary. An empty result is a valid zero-count response, not an error.
func (h *handlers) listEarthquakes(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, summary, err := h.service.FetchSync(c.Request.Context(), filter)
	if err != nil {
		h.renderFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"summary": summary,
	})
}

// fetchRequest is the JSON body accepted by the asynchronous fetch endpoint.
type fetchRequest struct {
	Start        string   `json:"start" binding:"required"`
	End          string   `json:"end" binding:"required"`
	MinMagnitude float64  `json:"min_magnitude"`
	MaxMagnitude *float64 `json:"max_magnitude"`
	MinLatitude  *float64 `json:"min_latitude"`
	MaxLatitude  *float64 `json:"max_latitude"`
	MinLongitude *float64 `json:"min_longitude"`
	MaxLongitude *float64 `json:"max_longitude"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

func (h *handlers) startFetch(c *gin.Context) {
	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := utils.ParseDate(req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("start: %v", err)})
		return
	}
	end, err := utils.ParseDate(req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("end: %v", err)})
		return
	}

	filter := models.Filter{
		Start:        start,
		End:          end,
		MinMagnitude: req.MinMagnitude,
		MaxMagnitude: req.MaxMagnitude,
		MinLatitude:  req.MinLatitude,
		MaxLatitude:  req.MaxLatitude,
		MinLongitude: req.MinLongitude,
		MaxLongitude: req.MaxLongitude,
		Limit:        req.Limit,
		Offset:       req.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = defaultLimit
	}
	if err := filter.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := h.service.Fetch(filter)
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (h *handlers) cancelFetch(c *gin.Context) {
	h.service.Cancel()
	c.Status(http.StatusNoContent)
}

// stream pushes service snapshots to the client over SSE. The current
// snapshot is replayed immediately on connect.
func (h *handlers) stream(c *gin.Context) {
	sub := h.service.Subscribe()
	defer h.service.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case snapshot := <-sub:
			c.SSEvent("snapshot", snapshot)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *handlers) dailyChart(c *gin.Context) {
	h.renderChart(c, report.DailyCountsChart)
}

func (h *handlers) magnitudeChart(c *gin.Context) {
	h.renderChart(c, report.MagnitudeHistogramChart)
}

func (h *handlers) renderChart(c *gin.Context, render func(models.Summary, io.Writer) error) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, summary, err := h.service.FetchSync(c.Request.Context(), filter)
	if err != nil {
		h.renderFetchError(c, err)
		return
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := render(summary, c.Writer); err != nil {
		h.logger.Error("chart render failed", slog.Any("error", err))
	}
}

func (h *handlers) renderFetchError(c *gin.Context, err error) {
	h.logger.Error("fetch failed", slog.Any("error", err))
	if utils.IsTimeout(err) {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "earthquake data request timed out",
			"kind":  utils.KindTimeout,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{
		"error": "earthquake data request failed",
		"kind":  utils.KindUpstream,
	})
}

// filterFromQuery binds and validates the filter query parameters shared by
// the list and chart endpoints.
func filterFromQuery(c *gin.Context) (models.Filter, error) {
	var filter models.Filter

	start, err := utils.ParseDate(c.Query("start"))
	if err != nil {
		return filter, fmt.Errorf("start: %w", err)
	}
	end, err := utils.ParseDate(c.Query("end"))
	if err != nil {
		return filter, fmt.Errorf("end: %w", err)
	}
	filter.Start = start
	filter.End = end

	if v := c.Query("min_magnitude"); v != "" {
		mag, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("min_magnitude: %w", err)
		}
		filter.MinMagnitude = mag
	}
	if filter.MaxMagnitude, err = optionalFloat(c, "max_magnitude"); err != nil {
		return filter, err
	}
	if filter.MinLatitude, err = optionalFloat(c, "min_latitude"); err != nil {
		return filter, err
	}
	if filter.MaxLatitude, err = optionalFloat(c, "max_latitude"); err != nil {
		return filter, err
	}
	if filter.MinLongitude, err = optionalFloat(c, "min_longitude"); err != nil {
		return filter, err
	}
	if filter.MaxLongitude, err = optionalFloat(c, "max_longitude"); err != nil {
		return filter, err
	}

	filter.Limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("limit: %w", err)
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("offset: %w", err)
		}
		filter.Offset = offset
	}

	if err := filter.Validate(); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalFloat(c *gin.Context, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &parsed, nil
}
