package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"housing-allocation-backend/internal/config"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/allocation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ApplicationHandler struct {
	service *allocation.Service
	logger  logrus.FieldLogger
}

func NewApplicationHandler(s *allocation.Service, logger logrus.FieldLogger) *ApplicationHandler {
	return &ApplicationHandler{service: s, logger: logger}
}

func (h *ApplicationHandler) respondError(c *gin.Context, fn string, data any, err error) {
	switch {
	case errors.Is(err, allocation.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	default:
		config.LogError(h.logger, "handler", fn, "handling application", data, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

// Apply registers an application of the given beneficiary to project :id.
func (h *ApplicationHandler) Apply(c *gin.Context) {
	projectID, ok := parseID(c, "project")
	if !ok {
		return
	}

	var payload struct {
		BeneficiaryID uint `json:"beneficiario_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "beneficiario_id is required"})
		return
	}

	app, err := h.service.Apply(c.Request.Context(), projectID, payload.BeneficiaryID, actorFrom(c))
	if err != nil {
		h.respondError(c, "Apply", gin.H{"project_id": projectID, "beneficiary_id": payload.BeneficiaryID}, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"message":     "Postulación registrada correctamente",
		"application": app,
	})
}

func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "application")
	if !ok {
		return
	}

	var payload struct {
		Status string `json:"estado"`
		Notes  string `json:"notas"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Falta el parámetro estado"})
		return
	}

	app, err := h.service.UpdateApplicationStatus(c.Request.Context(), id, payload.Status, payload.Notes, actorFrom(c))
	if err != nil {
		h.respondError(c, "UpdateStatus", gin.H{"application_id": id, "status": payload.Status}, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Estado de postulación actualizado",
		"application": app,
	})
}

func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	q := repository.ApplicationQuery{Status: c.Query("estado")}
	var ok bool
	if q.Cursor, q.Limit, ok = parsePage(c); !ok {
		return
	}

	items, nextCursor, hasMore, err := h.service.ListApplications(c.Request.Context(), q)
	if err != nil {
		config.LogError(h.logger, "handler", "ListApplications", "listing applications", q, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *ApplicationHandler) ListRegions(c *gin.Context) {
	regions, err := h.service.ListRegions(c.Request.Context())
	if err != nil {
		config.LogError(h.logger, "handler", "ListRegions", "listing regions", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": regions})
}

func (h *ApplicationHandler) CreateRegion(c *gin.Context) {
	var payload struct {
		Name string `json:"nombre"`
		Code string `json:"codigo"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	region := &models.Region{Name: payload.Name, Code: payload.Code}
	if err := h.service.CreateRegion(c.Request.Context(), region); err != nil {
		h.respondError(c, "CreateRegion", payload.Name, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"region": region})
}

// ListMunicipalities lists municipalities, optionally of one region_id.
func (h *ApplicationHandler) ListMunicipalities(c *gin.Context) {
	var regionID *uint
	if raw := c.Query("region_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid region_id"})
			return
		}
		id := uint(v)
		regionID = &id
	}

	municipalities, err := h.service.ListMunicipalities(c.Request.Context(), regionID)
	if err != nil {
		config.LogError(h.logger, "handler", "ListMunicipalities", "listing municipalities", regionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": municipalities})
}

func (h *ApplicationHandler) CreateMunicipality(c *gin.Context) {
	var payload struct {
		Name     string `json:"nombre"`
		Code     string `json:"codigo"`
		RegionID *uint  `json:"region_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	m := &models.Municipality{Name: payload.Name, Code: payload.Code, RegionID: payload.RegionID}
	if err := h.service.CreateMunicipality(c.Request.Context(), m); err != nil {
		h.respondError(c, "CreateMunicipality", payload.Name, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"municipality": m})
}
