package posapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/webserver"
)

func registerSettingsRoutes() {
	webserver.ApiGET("/pos/settings", listSettings)
	webserver.ApiGET("/pos/settings/store", storeSettings)
	webserver.ApiPOST("/pos/settings", saveSettings)
}

func listSettings(c echo.Context) error {
	rows, err := appCtx().ConfigMgr().ListSettings()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query settings", err.Error())
	}
	return ok(c, rows)
}

func storeSettings(c echo.Context) error {
	return ok(c, appCtx().ConfigMgr().StoreSettings())
}

func saveSettings(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	settings := make(map[string]interface{})
	if err := c.Bind(&settings); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse settings", nil)
	}
	if len(settings) == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "No settings supplied", nil)
	}

	if err := appCtx().SaveSettings(settings); err != nil {
		return fail(c, http.StatusUnprocessableEntity, "SETTINGS_ERROR", "Failed to save settings", err.Error())
	}
	return ok(c, appCtx().ConfigMgr().StoreSettings())
}
