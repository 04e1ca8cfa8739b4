package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tenant-admin-service/internal/model"
	"tenant-admin-service/pkg/database"
	"tenant-admin-service/pkg/logger"
	"tenant-admin-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CreateApplication registers an application for the acting user. A fresh
// UUID becomes the externally visible application identifier; names are not
// unique.
func CreateApplication(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApplicationOperation("create")

	// Get user ID from context (set by AuthMiddleware)
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordError("missing_actor")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	var req struct {
		Name     string                 `json:"name"`
		Details  string                 `json:"details,omitempty"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse application creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordError("incomplete_application_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	metadata := "{}"
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			log.Error("Failed to encode application metadata", zap.Error(err))
			prometheus.RecordError("invalid_request")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid metadata"})
		}
		metadata = string(raw)
	}

	application := model.Application{
		AppID:    uuid.New().String(),
		Name:     req.Name,
		Details:  req.Details,
		Metadata: metadata,
		OwnerID:  userID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&application); result.Error != nil {
		log.Error("Failed to create application", zap.Error(result.Error))
		prometheus.RecordError("application_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "application creation failed"})
	}

	log.Info("Application created",
		zap.String("name", application.Name),
		zap.String("app_id", application.AppID),
		zap.Uint("owner_id", userID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":     "Application created successfully",
		"application": application,
	})
}

// ListApplications returns all registered applications
func ListApplications(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApplicationOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var applications []model.Application
	if result := database.GetDB().Order("created_at desc").Find(&applications); result.Error != nil {
		log.Error("Failed to retrieve applications", zap.Error(result.Error))
		prometheus.RecordError("application_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve applications"})
	}

	return c.JSON(http.StatusOK, applications)
}

// GetApplication retrieves one application by its internal id
func GetApplication(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApplicationOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid application ID", zap.Error(err))
		prometheus.RecordError("invalid_application_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid application ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var application model.Application
	if result := database.GetDB().First(&application, id); result.Error != nil {
		log.Warn("Application not found", zap.Uint64("id", id))
		prometheus.RecordError("application_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "application not found"})
	}

	return c.JSON(http.StatusOK, application)
}

// UpdateApplication updates name, details and metadata of an application
func UpdateApplication(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApplicationOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid application ID", zap.Error(err))
		prometheus.RecordError("invalid_application_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid application ID"})
	}

	var req struct {
		Name     string                 `json:"name"`
		Details  string                 `json:"details,omitempty"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse application update request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordError("incomplete_application_update")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var application model.Application
	if result := database.GetDB().First(&application, id); result.Error != nil {
		log.Warn("Application not found", zap.Uint64("id", id))
		prometheus.RecordError("application_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "application not found"})
	}

	application.Name = req.Name
	application.Details = req.Details
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			log.Error("Failed to encode application metadata", zap.Error(err))
			prometheus.RecordError("invalid_request")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid metadata"})
		}
		application.Metadata = string(raw)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&application).Error; err != nil {
		log.Error("Failed to update application", zap.Error(err))
		prometheus.RecordError("application_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "application update failed"})
	}

	log.Info("Application updated",
		zap.Uint("id", application.ID),
		zap.String("name", application.Name))

	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Application updated successfully",
		"application": application,
	})
}

// DeleteApplication removes an application row
func DeleteApplication(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordApplicationOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid application ID", zap.Error(err))
		prometheus.RecordError("invalid_application_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid application ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := database.GetDB().Delete(&model.Application{}, id)
	if result.Error != nil {
		log.Error("Failed to delete application", zap.Error(result.Error))
		prometheus.RecordError("application_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "application deletion failed"})
	}

	if result.RowsAffected == 0 {
		prometheus.RecordError("application_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "application not found"})
	}

	log.Info("Application deleted", zap.Uint64("id", id))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
