package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"housing-allocation-backend/internal/lock"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/allocation"
	"housing-allocation-backend/internal/services/matching"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	store  *repository.MemoryStore
	locker *lock.LocalLocker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := repository.NewMemoryStore()
	locker := lock.NewLocalLocker()
	engine := matching.NewEngine(store, matching.NewScorer(matching.DefaultScorerConfig()), logger)
	svc := allocation.NewService(store, engine, locker, logger, time.Minute)
	h := NewMatchingHandler(svc, logger)
	ah := NewApplicationHandler(svc, logger)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/matching", h.ListMatches)
	api.POST("/matching/ejecutar", h.RunMatching)
	api.GET("/matching/runs/:runId", h.GetRunProgress)
	api.POST("/matching/:id/aprobar", h.ApproveMatch)
	api.POST("/matching/:id/rechazar", h.RejectMatch)
	api.GET("/dashboard", h.Dashboard)
	api.POST("/beneficiarios/upload", h.UploadBeneficiaries)
	api.POST("/proyectos", h.CreateProject)
	api.POST("/proyectos/:id/postular", ah.Apply)
	api.GET("/postulaciones", ah.ListApplications)
	api.POST("/postulaciones/:id/estado", ah.UpdateStatus)
	api.GET("/regiones", ah.ListRegions)
	api.POST("/regiones", ah.CreateRegion)
	api.GET("/municipios", ah.ListMunicipalities)
	api.POST("/municipios", ah.CreateMunicipality)

	return &testServer{router: r, store: store, locker: locker}
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	muni := s.store.AddMunicipality(models.Municipality{Name: "Viña del Mar"})
	score, size := 75, 4
	_, err := s.store.CreateBeneficiary(ctx, &models.Beneficiary{
		FirstName:          "Ana",
		LastName:           "Rojas",
		SocioeconomicScore: &score,
		HouseholdIncome:    decimal.NewNullDecimal(decimal.NewFromInt(1500000)),
		HouseholdSize:      &size,
		MunicipalityID:     &muni.ID,
		Status:             models.BeneficiaryActive,
	})
	require.NoError(t, err)
	require.NoError(t, s.store.CreateProject(ctx, &models.Project{
		Name:           "Villa Los Aromos",
		HousingType:    models.HousingMedia,
		UnitPrice:      decimal.NewNullDecimal(decimal.NewFromInt(2000000)),
		UnitArea:       decimal.NewNullDecimal(decimal.NewFromInt(80)),
		AvailableUnits: 1,
		Status:         models.ProjectActive,
		MunicipalityID: &muni.ID,
	}))
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestRunMatching(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	w, body := s.do(t, http.MethodPost, "/api/matching/ejecutar", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["run_id"])
	res := body["resultados"].(map[string]any)
	assert.EqualValues(t, 1, res["processed"])
	assert.EqualValues(t, 1, res["created"])

	w, progress := s.do(t, http.MethodGet, "/api/matching/runs/"+body["run_id"].(string), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RunCompleted, progress["status"])
}

func TestRunMatching_Conflict(t *testing.T) {
	s := newTestServer(t)
	_, err := s.locker.Obtain(context.Background(), allocation.RunLockKey, time.Minute)
	require.NoError(t, err)

	w, body := s.do(t, http.MethodPost, "/api/matching/ejecutar", strings.NewReader(`{"limite_proyectos": 5}`), nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestRunMatching_BadPayload(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/matching/ejecutar", strings.NewReader(`{"limite_proyectos": -3}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/matching/ejecutar", strings.NewReader(`not json`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveMatch(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/matching/ejecutar", nil, nil)
	m := s.store.Matches()[0]
	headers := map[string]string{HeaderUserID: "42", HeaderUserName: "evaluadora"}

	w, body := s.do(t, http.MethodPost, "/api/matching/"+itoa(m.ID)+"/aprobar", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	logs := s.store.AuditLogs()
	last := logs[len(logs)-1]
	assert.Equal(t, models.ActionApproveMatch, last.Action)
	require.NotNil(t, last.ActorID)
	assert.Equal(t, uint(42), *last.ActorID)

	w, body = s.do(t, http.MethodPost, "/api/matching/"+itoa(m.ID)+"/aprobar", nil, headers)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestApproveMatch_InvalidID(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/matching/abc/aprobar", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectMatch_DefaultReason(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/matching/ejecutar", nil, nil)
	m := s.store.Matches()[0]

	w, _ := s.do(t, http.MethodPost, "/api/matching/"+itoa(m.ID)+"/rechazar", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored := s.store.Matches()[0]
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, DefaultRejectionReason, *stored.RejectionReason)
}

func TestRejectMatch_WithReason(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/matching/ejecutar", nil, nil)
	m := s.store.Matches()[0]

	w, _ := s.do(t, http.MethodPost, "/api/matching/"+itoa(m.ID)+"/rechazar", strings.NewReader(`{"motivo":"Renuncia voluntaria"}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renuncia voluntaria", *s.store.Matches()[0].RejectionReason)
}

func TestListMatches(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)
	s.do(t, http.MethodPost, "/api/matching/ejecutar", nil, nil)

	w, body := s.do(t, http.MethodGet, "/api/matching?state=Pendiente&search=villa", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 1)
	assert.Equal(t, false, body["has_more"])

	w, _ = s.do(t, http.MethodGet, "/api/matching?cursor=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRunProgress_NotFound(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/matching/runs/5b1c9f1e-2a7d-4b8e-9c43-0f6a2d1e7b90", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/matching/runs/nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	s.seed(t)

	w, body := s.do(t, http.MethodGet, "/api/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["beneficiaries"])
	assert.EqualValues(t, 1, body["total_available_units"])
}

func TestUploadBeneficiaries(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "beneficiarios.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("rut,nombre,apellidos,email,puntaje,ingresos,integrantes,municipio,estado\n" +
		"11.111.111-1,Ana,Rojas,,75,1500000,4,,Activo\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, body := s.do(t, http.MethodPost, "/api/beneficiarios/upload", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["beneficiariesAdded"])
	assert.Equal(t, "beneficiarios.csv", body["file"])
}

func TestUploadBeneficiaries_NoFile(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/api/beneficiarios/upload", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProject(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/proyectos", strings.NewReader(`{
		"nombre": "Parque Oriente",
		"tipo_vivienda": "Social",
		"precio_unitario": "1200000",
		"superficie_unitaria": 55.5,
		"unidades_disponibles": 12,
		"estado": "Disponible"
	}`), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	project := body["project"].(map[string]any)
	assert.Equal(t, "Parque Oriente", project["name"])

	p, err := s.store.GetProject(context.Background(), uint(project["id"].(float64)))
	require.NoError(t, err)
	assert.True(t, p.UnitArea.Decimal.Equal(decimal.RequireFromString("55.5")))
	assert.Equal(t, 12, p.AvailableUnits)

	w, _ = s.do(t, http.MethodPost, "/api/proyectos", strings.NewReader(`{"nombre": ""}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
