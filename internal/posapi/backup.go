package posapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/talkincode/tinypos/internal/snapshot"
	"github.com/talkincode/tinypos/internal/webserver"
	"github.com/talkincode/tinypos/pkg/common"
)

type importPayload struct {
	DataBase64 string `json:"data_base64" validate:"required"`
}

func registerBackupRoutes() {
	webserver.ApiGET("/pos/backup/export", exportBackup)
	webserver.ApiGET("/pos/backup/export/base64", exportBackupBase64)
	webserver.ApiPOST("/pos/backup/import", importBackup)
	webserver.ApiPOST("/pos/backup/import/base64", importBackupBase64)
}

func exportBackup(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	data, err := GetEngine(c).ExportSnapshot()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to serialize database", err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+snapshot.ExportFilename+`"`)
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

func exportBackupBase64(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	data, err := GetEngine(c).ExportSnapshot()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to serialize database", err.Error())
	}
	return ok(c, map[string]interface{}{
		"filename":    snapshot.ExportFilename,
		"data_base64": common.Base64Encode(data),
	})
}

// importBackup replaces the whole database from an uploaded sqlite file.
// The caller must pass confirm=true; this is the destructive path.
func importBackup(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if c.QueryParam("confirm") != "true" {
		return fail(c, http.StatusBadRequest, "CONFIRM_REQUIRED",
			"Importing replaces all data; repeat the request with confirm=true", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "A database file upload is required", nil)
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to open upload", err.Error())
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read upload", err.Error())
	}

	if err := GetEngine(c).Restore(data); err != nil {
		return fail(c, http.StatusUnprocessableEntity, "IMPORT_ERROR", "Database import failed", err.Error())
	}

	zap.L().Warn("database imported from upload", zap.Int("bytes", len(data)))
	return ok(c, map[string]interface{}{"imported_bytes": len(data)})
}

func importBackupBase64(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if c.QueryParam("confirm") != "true" {
		return fail(c, http.StatusBadRequest, "CONFIRM_REQUIRED",
			"Importing replaces all data; repeat the request with confirm=true", nil)
	}

	var payload importPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse import parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	data, err := common.Base64Decode(payload.DataBase64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_BASE64", "Unable to decode payload", err.Error())
	}

	if err := GetEngine(c).Restore(data); err != nil {
		return fail(c, http.StatusUnprocessableEntity, "IMPORT_ERROR", "Database import failed", err.Error())
	}
	return ok(c, map[string]interface{}{"imported_bytes": len(data)})
}
