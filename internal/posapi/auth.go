package posapi

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/talkincode/tinypos/internal/webserver"
)

type loginPayload struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

func registerAuthRoutes() {
	webserver.ApiPOST("/login", login)
	webserver.ApiGET("/status", status)
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	user, err := GetEngine(c).Authenticate(payload.Username, payload.Password)
	if err != nil {
		zap.L().Warn("login rejected", zap.String("username", payload.Username))
		return engineError(c, err)
	}

	claims := jwt.MapClaims{
		"usr":  user.Username,
		"role": user.Role,
		"exp":  time.Now().Add(12 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(appCtx().Config().Web.Secret))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to issue token", err.Error())
	}

	return ok(c, map[string]interface{}{
		"token":    signed,
		"username": user.Username,
		"role":     user.Role,
	})
}

func status(c echo.Context) error {
	cfg := appCtx().Config()
	return ok(c, map[string]interface{}{
		"appid":   cfg.System.Appid,
		"db_type": cfg.Database.Type,
		"time":    time.Now(),
	})
}
