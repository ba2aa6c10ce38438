package api

import (
	"errors"
	"fmt"
	"net/http"

	"drive/internal/server/database"
	"drive/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the drive API.
type Handler struct {
	svc *service.Service
	db  *database.DB
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.Service, db *database.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

// HandleCreateUser handles POST /api/users.
func (h *Handler) HandleCreateUser(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.svc.CreateUser(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, user)
}

// HandleUpload handles POST /api/upload/:userID.
// Accepts a multipart form with a "file" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	userID := c.Param("userID")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	result, err := h.svc.Upload(c.Request().Context(), userID, fileHeader.Filename, src)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleDownload handles GET /d/:id.
// Serves the blob as an attachment. Identity comes from the optional
// "user_id" query param; anonymous requests only reach public files.
func (h *Handler) HandleDownload(c echo.Context) error {
	id := c.Param("id")
	userID := c.QueryParam("user_id")

	filePath, filename, err := h.svc.Download(c.Request().Context(), id, userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Attachment(filePath, filename)
}

// HandleListFiles handles GET /api/files/:userID.
func (h *Handler) HandleListFiles(c echo.Context) error {
	userID := c.Param("userID")

	files, err := h.svc.ListFiles(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleDelete handles DELETE /api/files/:id.
func (h *Handler) HandleDelete(c echo.Context) error {
	id := c.Param("id")
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	if err := h.svc.Delete(c.Request().Context(), id, userID); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "file deleted successfully",
	})
}

// HandleVisibility handles PATCH /api/files/:id/visibility.
func (h *Handler) HandleVisibility(c echo.Context) error {
	id := c.Param("id")
	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	var req struct {
		IsPublic bool `json:"is_public"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.svc.SetVisibility(c.Request().Context(), id, userID, req.IsPublic); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":        id,
		"is_public": req.IsPublic,
	})
}

// HandleUserStats handles GET /api/stats/:userID.
// Returns the user's storage usage and dedup savings.
func (h *Handler) HandleUserStats(c echo.Context) error {
	userID := c.Param("userID")

	stats, err := h.svc.GetStats(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}

// HandleServerStats handles GET /api/stats.
// Returns aggregate server statistics.
func (h *Handler) HandleServerStats(c echo.Context) error {
	stats, err := h.svc.ServerStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	saved := stats.LogicalBytes - stats.PhysicalBytes
	return c.JSON(http.StatusOK, echo.Map{
		"total_users":          stats.TotalUsers,
		"total_files":          stats.TotalFiles,
		"total_blobs":          stats.TotalBlobs,
		"physical_bytes":       stats.PhysicalBytes,
		"logical_bytes":        stats.LogicalBytes,
		"dedup_saved_bytes":    saved,
		"physical_bytes_human": humanizeBytes(stats.PhysicalBytes),
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, service.ErrFileNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	case errors.Is(err, service.ErrAccessDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "storage quota exceeded",
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
