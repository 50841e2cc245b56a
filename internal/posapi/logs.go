package posapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/webserver"
)

func registerLogRoutes() {
	webserver.ApiGET("/pos/logs", listLogs)
}

func listLogs(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.PosLog{})
	if t := strings.TrimSpace(c.QueryParam("type")); t != "" {
		db = db.Where("type = ?", t)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query logs", err.Error())
	}

	var logs []domain.PosLog
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&logs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query logs", err.Error())
	}

	return paged(c, logs, total, page, pageSize)
}
