package posapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/webserver"
)

type userPayload struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin cashier"`
}

type passwordPayload struct {
	Password string `json:"password" validate:"required,min=6"`
}

func registerUserRoutes() {
	webserver.ApiGET("/pos/users", listUsers)
	webserver.ApiPOST("/pos/users", createUser)
	webserver.ApiDELETE("/pos/users/:username", deleteUser)
	webserver.ApiPOST("/pos/users/:username/password", changePassword)
}

func listUsers(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	users, err := GetEngine(c).ListUsers()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query users", err.Error())
	}
	return ok(c, users)
}

func createUser(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	var payload userPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse user parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	username := strings.TrimSpace(payload.Username)
	if err := GetEngine(c).CreateUser(username, payload.Password, payload.Role); err != nil {
		return engineError(c, err)
	}
	return ok(c, map[string]interface{}{"username": username, "role": payload.Role})
}

func deleteUser(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	username := strings.TrimSpace(c.Param("username"))
	if err := GetEngine(c).DeleteUser(username); err != nil {
		return engineError(c, err)
	}
	return ok(c, map[string]interface{}{"username": username})
}

func changePassword(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	var payload passwordPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse password parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	username := strings.TrimSpace(c.Param("username"))
	if err := GetEngine(c).ChangePassword(username, payload.Password); err != nil {
		return engineError(c, err)
	}
	return ok(c, map[string]interface{}{"username": username})
}
