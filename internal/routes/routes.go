package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	handler "housing-allocation-backend/internal/handlers"
	"housing-allocation-backend/internal/metrics"
	"housing-allocation-backend/internal/services/allocation"
)

func RegisterRoutes(r *gin.Engine, svc *allocation.Service, logger logrus.FieldLogger) {
	matchingHandler := handler.NewMatchingHandler(svc, logger.WithField("module", "handler"))
	applicationHandler := handler.NewApplicationHandler(svc, logger.WithField("module", "handler"))

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Matching runs and decisions
	m := api.Group("/matching")
	m.GET("", matchingHandler.ListMatches)
	m.POST("/ejecutar", matchingHandler.RunMatching)
	m.GET("/runs/:runId", matchingHandler.GetRunProgress)
	m.POST("/:id/aprobar", matchingHandler.ApproveMatch)
	m.POST("/:id/rechazar", matchingHandler.RejectMatch)

	api.GET("/dashboard", matchingHandler.Dashboard)

	// Catalog
	api.POST("/beneficiarios/upload", matchingHandler.UploadBeneficiaries)
	api.POST("/proyectos", matchingHandler.CreateProject)
	api.GET("/regiones", applicationHandler.ListRegions)
	api.POST("/regiones", applicationHandler.CreateRegion)
	api.GET("/municipios", applicationHandler.ListMunicipalities)
	api.POST("/municipios", applicationHandler.CreateMunicipality)

	// Applications
	api.POST("/proyectos/:id/postular", applicationHandler.Apply)
	api.GET("/postulaciones", applicationHandler.ListApplications)
	api.POST("/postulaciones/:id/estado", applicationHandler.UpdateStatus)
}
