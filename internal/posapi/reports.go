package posapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/webserver"
)

func registerReportRoutes() {
	webserver.ApiGET("/pos/reports/summary", salesSummary)
	webserver.ApiGET("/pos/reports/export/xlsx", exportSalesXlsx)
}

func reportRange(c echo.Context) (start, end time.Time, err error) {
	end = time.Now()
	start = end.AddDate(0, 0, -30)
	if s := strings.TrimSpace(c.QueryParam("start")); s != "" {
		if start, err = dateparse.ParseLocal(s); err != nil {
			return
		}
	}
	if s := strings.TrimSpace(c.QueryParam("end")); s != "" {
		if end, err = dateparse.ParseLocal(s); err != nil {
			return
		}
	}
	return
}

func salesSummary(c echo.Context) error {
	start, end, err := reportRange(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse report range", err.Error())
	}

	var trxs []domain.Transaction
	if err := GetDB(c).Where("timestamp >= ? and timestamp <= ?", start, end).
		Find(&trxs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}

	totals := make([]float64, 0, len(trxs))
	byMethod := make(map[string]float64)
	for _, t := range trxs {
		totals = append(totals, t.Total)
		byMethod[t.PaymentMethod] += t.Total
	}

	summary := map[string]interface{}{
		"start":             start,
		"end":               end,
		"transaction_count": len(trxs),
		"by_payment_method": byMethod,
	}
	if len(totals) > 0 {
		sum, _ := stats.Sum(totals)
		mean, _ := stats.Mean(totals)
		median, _ := stats.Median(totals)
		max, _ := stats.Max(totals)
		summary["revenue"] = sum
		summary["mean_ticket"] = mean
		summary["median_ticket"] = median
		summary["max_ticket"] = max
	} else {
		summary["revenue"] = 0.0
	}

	return ok(c, summary)
}

func exportSalesXlsx(c echo.Context) error {
	start, end, err := reportRange(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse report range", err.Error())
	}

	var trxs []domain.Transaction
	if err := GetDB(c).Preload("Items").
		Where("timestamp >= ? and timestamp <= ?", start, end).
		Order("id").Find(&trxs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}

	f := excelize.NewFile()
	const sheet = "Sheet1"
	headers := []string{"Invoice", "Timestamp", "Payment", "Product", "Qty", "Unit Price", "Line Total"}
	for i, h := range headers {
		f.SetCellValue(sheet, fmt.Sprintf("%c1", 'A'+i), h)
	}

	row := 2
	for _, t := range trxs {
		for _, it := range t.Items {
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), t.InvoiceNumber)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), t.Timestamp.Format("2006-01-02 15:04:05"))
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), t.PaymentMethod)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), it.ProductName)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), it.Quantity)
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), it.UnitPrice)
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), it.LineTotal)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fail(c, http.StatusInternalServerError, "XLSX_ERROR", "Failed to build workbook", err.Error())
	}

	filename := fmt.Sprintf("sales_%s_%s.xlsx", start.Format("20060102"), end.Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
