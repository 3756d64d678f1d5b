package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// RegisterRoutes adds the /api/config endpoints for cfile to r.
func RegisterRoutes(r gin.IRouter, cfile string) {
	r.GET("/api/config", getConfigHandler(cfile))
	r.POST("/api/config", setConfigHandler(cfile))
}

// getConfigHandler reads the current config file and returns the
// runtime-safe part of it as JSON.
func getConfigHandler(cfile string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		slog.Info("Handling GET /api/config request")
		// Read on every request so we always answer with what is on disk.
		fullConfig, err := ReadConfig(cfile)
		if err != nil {
			slog.Error("Failed to read config file for API", "error", err)
			ctx.String(http.StatusInternalServerError, "Failed to read configuration")
			return
		}
		ctx.JSON(http.StatusOK, fullConfig.Runtime())
	}
}

// setConfigHandler merges a runtime configuration into the file on disk,
// validates the result and writes it back. The config watcher picks up
// the write and the control loop applies it.
func setConfigHandler(cfile string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		slog.Info("Handling POST /api/config request")
		var newRuntimeConfig RuntimeConfig
		if err := ctx.ShouldBindJSON(&newRuntimeConfig); err != nil {
			slog.Error("Failed to decode incoming JSON", "error", err)
			ctx.String(http.StatusBadRequest, "Invalid request body")
			return
		}

		fullConfig, err := ReadConfig(cfile)
		if err != nil {
			slog.Error("Failed to read existing config for update", "error", err)
			ctx.String(http.StatusInternalServerError, "Failed to read configuration")
			return
		}

		fullConfig.Thresholds = newRuntimeConfig.Thresholds
		fullConfig.Control = newRuntimeConfig.Control

		if err := fullConfig.Validate(); err != nil {
			slog.Error("Validation failed for new config", "error", err)
			ctx.String(http.StatusBadRequest, fmt.Sprintf("Invalid configuration: %v", err))
			return
		}

		yamlData, err := yaml.Marshal(&fullConfig)
		if err != nil {
			slog.Error("Failed to marshal merged config to YAML", "error", err)
			ctx.String(http.StatusInternalServerError, "Failed to prepare configuration for saving")
			return
		}
		if err := replaceFile(cfile, yamlData); err != nil {
			slog.Error("Failed to write updated config file", "error", err)
			ctx.String(http.StatusInternalServerError, "Failed to save configuration")
			return
		}

		slog.Info("Successfully updated config file, application will reload.")
		ctx.String(http.StatusOK, "Configuration updated successfully.")
	}
}

// replaceFile writes data next to cfile and renames it into place, so a
// reader never sees a truncated config.
func replaceFile(cfile string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(cfile), "."+filepath.Base(cfile)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), cfile)
}
