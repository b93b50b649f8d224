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
	"housing-allocation-backend/internal/services/matching"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"

	DefaultRejectionReason = "Rechazado por el sistema"
)

type MatchingHandler struct {
	service *allocation.Service
	logger  logrus.FieldLogger
}

func NewMatchingHandler(s *allocation.Service, logger logrus.FieldLogger) *MatchingHandler {
	return &MatchingHandler{service: s, logger: logger}
}

// actorFrom reads the acting user from the request headers. An absent or
// malformed user id records the action without an actor.
func actorFrom(c *gin.Context) matching.ActorContext {
	actor := matching.ActorContext{
		Username:  c.GetHeader(HeaderUserName),
		IPAddress: c.ClientIP(),
	}
	if raw := c.GetHeader(HeaderUserID); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			uid := uint(id)
			actor.UserID = &uid
		}
	}
	return actor
}

func parseID(c *gin.Context, entity string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid " + entity + " ID"})
		return 0, false
	}
	return uint(id), true
}

// parsePage reads the cursor and limit query parameters.
func parsePage(c *gin.Context) (cursor uint, limit int, ok bool) {
	if raw := c.Query("cursor"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return 0, 0, false
		}
		cursor = uint(v)
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return 0, 0, false
		}
		limit = v
	}
	return cursor, limit, true
}

// RunMatching starts a matching run and waits for its result.
func (h *MatchingHandler) RunMatching(c *gin.Context) {
	var payload struct {
		RegionID       *uint `json:"region_id"`
		MunicipalityID *uint `json:"municipio_id"`
		ProjectLimit   int   `json:"limite_proyectos"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
			return
		}
	}

	outcome, err := h.service.ExecuteRun(c.Request.Context(), allocation.RunRequest{
		RegionID:       payload.RegionID,
		MunicipalityID: payload.MunicipalityID,
		ProjectLimit:   payload.ProjectLimit,
		Trigger:        models.TriggerAPI,
		Actor:          actorFrom(c),
	})
	switch {
	case errors.Is(err, allocation.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, allocation.ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		config.LogError(h.logger, "handler", "RunMatching", "executing run", payload, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"run_id":     outcome.Run.ID.String(),
		"resultados": outcome.Result,
	})
}

func (h *MatchingHandler) ApproveMatch(c *gin.Context) {
	id, ok := parseID(c, "match")
	if !ok {
		return
	}

	decision, err := h.service.Approve(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.decisionError(c, "ApproveMatch", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Matching aprobado exitosamente",
		"decision": decision,
	})
}

func (h *MatchingHandler) RejectMatch(c *gin.Context) {
	id, ok := parseID(c, "match")
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"motivo"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
			return
		}
	}
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}

	decision, err := h.service.Reject(c.Request.Context(), id, reason, actorFrom(c))
	if err != nil {
		h.decisionError(c, "RejectMatch", id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Matching rechazado",
		"decision": decision,
	})
}

func (h *MatchingHandler) decisionError(c *gin.Context, fn string, id uint, err error) {
	if errors.Is(err, matching.ErrMatchNotPending) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	config.LogError(h.logger, "handler", fn, "deciding match", gin.H{"match_id": id}, err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}

func (h *MatchingHandler) ListMatches(c *gin.Context) {
	q := repository.MatchQuery{
		State:  c.Query("state"),
		Search: strings.TrimSpace(c.Query("search")),
	}
	var ok bool
	if q.Cursor, q.Limit, ok = parsePage(c); !ok {
		return
	}

	items, nextCursor, hasMore, err := h.service.ListMatches(c.Request.Context(), q)
	if err != nil {
		config.LogError(h.logger, "handler", "ListMatches", "listing matches", q, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *MatchingHandler) GetRunProgress(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		config.LogError(h.logger, "handler", "GetRunProgress", "loading run", runID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": run.Processed,
		"created":   run.Created,
		"errors":    run.Errors,
		"status":    run.Status,
		"run":       run,
	})
}

func (h *MatchingHandler) Dashboard(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		config.LogError(h.logger, "handler", "Dashboard", "computing stats", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// UploadBeneficiaries imports a beneficiary CSV sent as the "file" form field.
func (h *MatchingHandler) UploadBeneficiaries(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	h.logger.WithFields(logrus.Fields{"file": header.Filename, "size": header.Size}).Info("received beneficiary file")

	result, err := h.service.ImportBeneficiaries(c.Request.Context(), file)
	if err != nil && result == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		config.LogError(h.logger, "handler", "UploadBeneficiaries", "importing beneficiaries", header.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":              err.Error(),
			"beneficiariesAdded": result.Inserted,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file":               header.Filename,
		"beneficiariesAdded": result.Inserted,
		"skipped":            result.Skipped,
	})
}

func (h *MatchingHandler) CreateProject(c *gin.Context) {
	var payload struct {
		Name           string           `json:"nombre"`
		Description    string           `json:"descripcion"`
		HousingType    string           `json:"tipo_vivienda"`
		UnitPrice      *decimal.Decimal `json:"precio_unitario"`
		UnitArea       *decimal.Decimal `json:"superficie_unitaria"`
		AvailableUnits int              `json:"unidades_disponibles"`
		Status         string           `json:"estado"`
		MunicipalityID *uint            `json:"municipio_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	project := &models.Project{
		Name:           strings.TrimSpace(payload.Name),
		Description:    payload.Description,
		HousingType:    payload.HousingType,
		AvailableUnits: payload.AvailableUnits,
		Status:         payload.Status,
		MunicipalityID: payload.MunicipalityID,
	}
	if payload.UnitPrice != nil {
		project.UnitPrice = decimal.NewNullDecimal(*payload.UnitPrice)
	}
	if payload.UnitArea != nil {
		project.UnitArea = decimal.NewNullDecimal(*payload.UnitArea)
	}

	err := h.service.CreateProject(c.Request.Context(), project)
	if errors.Is(err, allocation.ErrInvalidParams) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		config.LogError(h.logger, "handler", "CreateProject", "creating project", payload.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "project created", "project": project})
}
