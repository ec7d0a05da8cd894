package rules

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sfex/internal/logger"
	"sfex/pkg/errors"
	"sfex/pkg/logging"
	"sfex/pkg/models"
)

// ProfileReader is the slice of the vendor store the HTTP surface
// needs: rule sets come through the engine, raw configs through this.
type ProfileReader interface {
	RuleConfigs(vendorID string) ([]Config, error)
}

type Handler struct {
	engine   *Engine
	profiles ProfileReader
	logger   logger.Logger
}

func NewHandler(engine *Engine, profiles ProfileReader, log logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		profiles: profiles,
		logger:   log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/validate", h.Validate)

		vendors := v1.Group("/vendors")
		{
			vendors.GET(":id/rules", h.GetVendorRules)
		}
	}
}

type ValidateRequest struct {
	VendorID      string          `json:"vendor_id" binding:"required"`
	CorrelationID string          `json:"correlation_id"`
	Records       []models.Record `json:"records" binding:"required"`
}

func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	// An explicit X-Correlation-ID header wins over the body; the
	// middleware-minted id is only a fallback.
	correlationID := c.GetHeader("X-Correlation-ID")
	if correlationID == "" {
		correlationID = req.CorrelationID
	}
	if correlationID == "" {
		correlationID = c.GetString(logging.CorrelationIDKey)
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	result, err := h.engine.ValidateVendor(c.Request.Context(), req.VendorID, correlationID, req.Records)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetVendorRules(c *gin.Context) {
	vendorID := c.Param("id")

	configs, err := h.profiles.RuleConfigs(vendorID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"vendor_id": vendorID,
		"rules":     configs,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request failed",
			"error", err,
			"path", c.Request.URL.Path,
		)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}
