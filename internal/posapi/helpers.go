// Package posapi implements the terminal's local HTTP API: catalog, cart,
// checkout, ledger, users, audit log, backup and offline cache control.
package posapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/talkincode/tinypos/internal/app"
	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/engine"
	"github.com/talkincode/tinypos/internal/webserver"
)

// Init registers every terminal API route. Call after webserver.Init.
func Init() {
	registerAuthRoutes()
	registerProductRoutes()
	registerCartRoutes()
	registerTransactionRoutes()
	registerReportRoutes()
	registerUserRoutes()
	registerLogRoutes()
	registerBackupRoutes()
	registerOfflineRoutes()
	registerSettingsRoutes()
}

func appCtx() *app.Application {
	return webserver.AppCtx()
}

// GetDB returns the working database handle for a request.
func GetDB(c echo.Context) *gorm.DB {
	return appCtx().DB()
}

// GetEngine returns the catalog and ledger engine for a request.
func GetEngine(c echo.Context) *engine.Engine {
	return appCtx().Engine()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":   code,
		"msg":    msg,
		"detail": detail,
	})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      0,
		"msg":       "ok",
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
}

func handleValidationError(c echo.Context, err error) error {
	return fail(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid request parameters", err.Error())
}

// requireAdmin rejects requests whose token does not carry the admin role.
func requireAdmin(c echo.Context) error {
	token, _ := c.Get("user").(*jwt.Token)
	if token != nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if role, _ := claims["role"].(string); role == domain.RoleAdmin {
				return nil
			}
		}
	}
	return fail(c, http.StatusForbidden, "FORBIDDEN", "Admin role required", nil)
}

// engineError maps engine sentinel errors onto HTTP failures so every
// handler reports them the same way.
func engineError(c echo.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrProductNotFound):
		return fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
	case errors.Is(err, engine.ErrUserNotFound):
		return fail(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	case errors.Is(err, engine.ErrTransactionNotFound):
		return fail(c, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "Transaction not found", nil)
	case errors.Is(err, engine.ErrUserExists):
		return fail(c, http.StatusConflict, "USER_EXISTS", "User already exists", nil)
	case errors.Is(err, engine.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	case errors.Is(err, engine.ErrWeakPassword):
		return fail(c, http.StatusUnprocessableEntity, "WEAK_PASSWORD", err.Error(), nil)
	case errors.Is(err, engine.ErrLastAdmin):
		return fail(c, http.StatusConflict, "LAST_ADMIN", "The last admin user cannot be deleted", nil)
	case errors.Is(err, engine.ErrEmptyCart):
		return fail(c, http.StatusBadRequest, "EMPTY_CART", "Cart is empty", nil)
	case errors.Is(err, engine.ErrBarcodeTooShort):
		return fail(c, http.StatusBadRequest, "BARCODE_TOO_SHORT", "Scanned code is too short", nil)
	case errors.Is(err, engine.ErrInvalidProduct):
		return fail(c, http.StatusUnprocessableEntity, "INVALID_PRODUCT", err.Error(), nil)
	case errors.Is(err, engine.ErrBadRole):
		return fail(c, http.StatusUnprocessableEntity, "BAD_ROLE", err.Error(), nil)
	case errors.Is(err, engine.ErrBadQuantity):
		return fail(c, http.StatusUnprocessableEntity, "BAD_QUANTITY", err.Error(), nil)
	case errors.Is(err, engine.ErrCartLineNotFound):
		return fail(c, http.StatusNotFound, "CART_LINE_NOT_FOUND", "Cart line not found", nil)
	default:
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed", err.Error())
	}
}
