package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignment-tracker-api/internal/middleware"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Assignments *AssignmentHandler
	Tracks      *TrackHandler
	Uploads     *UploadHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under prefix. Health, readiness and metrics stay at the root.
func RegisterRoutes(r *gin.Engine, prefix string, tokens middleware.TokenValidator, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	r.GET("/metrics/summary", h.Metrics.Summary)

	api := r.Group(prefix)
	api.GET("/files/:token", h.Uploads.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)
	selfOrStaff := middleware.RBAC(string(models.RoleAdmin), string(models.RoleInstructor), "SELF")
	selfOrAdmin := middleware.RBAC(string(models.RoleAdmin), "SELF")

	assignments := secured.Group("/assignments")
	assignments.POST("", staff, h.Assignments.Create)
	assignments.GET("", staff, h.Assignments.List)
	assignments.GET("/:id", h.Assignments.Get)
	assignments.GET("/:id/tracks", staff, h.Assignments.Roster)
	assignments.GET("/:id/gradebook", staff, h.Assignments.Gradebook)

	applicants := secured.Group("/applicants/:applicantId/assignments")
	applicants.GET("", selfOrStaff, h.Tracks.Dashboard)
	applicants.GET("/:assignmentId", selfOrStaff, h.Tracks.Detail)
	applicants.POST("/:assignmentId/accept", selfOrAdmin, h.Tracks.Accept)
	applicants.POST("/:assignmentId/submit", selfOrAdmin, h.Tracks.Submit)
	applicants.POST("/:assignmentId/evaluate", staff, h.Tracks.Evaluate)

	secured.POST("/uploads", h.Uploads.Upload)
}
