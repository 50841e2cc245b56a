package posapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/offline"
	"github.com/talkincode/tinypos/internal/webserver"
)

type offlineMessagePayload struct {
	Type string `json:"type" validate:"required"`
}

type offlineRegisterPayload struct {
	Version string `json:"version" validate:"required,min=1,max=32"`
}

func registerOfflineRoutes() {
	webserver.ApiGET("/pos/offline/status", offlineStatus)
	webserver.ApiPOST("/pos/offline/message", offlineMessage)
	webserver.ApiPOST("/pos/offline/register", offlineRegister)
}

func offlineRegistry(c echo.Context) (*offline.Registry, error) {
	reg := appCtx().Offline()
	if reg == nil {
		return nil, fail(c, http.StatusServiceUnavailable, "OFFLINE_UNAVAILABLE", "Offline layer is not initialized", nil)
	}
	return reg, nil
}

func offlineStatus(c echo.Context) error {
	reg, errResp := offlineRegistry(c)
	if reg == nil {
		return errResp
	}
	return ok(c, reg.Status())
}

// offlineMessage forwards a control message to the caching layer; the only
// recognized type is SKIP_WAITING, which promotes an installed update.
func offlineMessage(c echo.Context) error {
	reg, errResp := offlineRegistry(c)
	if reg == nil {
		return errResp
	}

	var payload offlineMessagePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse message", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	reg.PostMessage(offline.Message{Type: strings.TrimSpace(payload.Type)})
	return ok(c, map[string]interface{}{"posted": payload.Type})
}

// offlineRegister installs a cache version, typically after a shell deploy
// bumped the version tag.
func offlineRegister(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	reg, errResp := offlineRegistry(c)
	if reg == nil {
		return errResp
	}

	var payload offlineRegisterPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse register parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	if err := reg.Register(c.Request().Context(), strings.TrimSpace(payload.Version)); err != nil {
		return fail(c, http.StatusBadGateway, "INSTALL_FAILED", "Cache install failed; previous generation still serves", err.Error())
	}
	return ok(c, reg.Status())
}
