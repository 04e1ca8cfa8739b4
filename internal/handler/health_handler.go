package handler

import (
	"net/http"

	"tenant-admin-service/prometheus"

	"github.com/labstack/echo/v4"
)

// HealthCheck returns the service liveness status
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"service": "tenant-admin-service",
	})
}

// MetricsHandler exposes the Prometheus metrics endpoint
func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
