package posapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/webserver"
)

func registerTransactionRoutes() {
	webserver.ApiGET("/pos/transactions", listTransactions)
	webserver.ApiGET("/pos/transactions/:id", getTransaction)
	webserver.ApiGET("/pos/transactions/:id/receipt", transactionReceipt)
}

func listTransactions(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.Transaction{})
	if s := strings.TrimSpace(c.QueryParam("start")); s != "" {
		t, err := dateparse.ParseLocal(s)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse start date", err.Error())
		}
		db = db.Where("timestamp >= ?", t)
	}
	if s := strings.TrimSpace(c.QueryParam("end")); s != "" {
		t, err := dateparse.ParseLocal(s)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_DATE", "Unable to parse end date", err.Error())
		}
		db = db.Where("timestamp <= ?", t)
	}
	if pm := strings.TrimSpace(c.QueryParam("payment_method")); pm != "" {
		db = db.Where("payment_method = ?", pm)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}

	var trxs []domain.Transaction
	if err := db.Preload("Items").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&trxs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}

	return paged(c, trxs, total, page, pageSize)
}

func getTransaction(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid transaction ID", nil)
	}

	trx, err := GetEngine(c).GetTransaction(id)
	if err != nil {
		return engineError(c, err)
	}
	return ok(c, trx)
}

// transactionReceipt renders a fixed-width text receipt for the thermal
// printer path.
func transactionReceipt(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid transaction ID", nil)
	}

	trx, err := GetEngine(c).GetTransaction(id)
	if err != nil {
		return engineError(c, err)
	}

	st := appCtx().ConfigMgr().StoreSettings()
	money := moneyFormatter(st.Currency)

	var b strings.Builder
	b.WriteString(center(st.StoreName, 40) + "\n")
	if st.StoreAddress != "" {
		b.WriteString(center(st.StoreAddress, 40) + "\n")
	}
	b.WriteString(strings.Repeat("=", 40) + "\n")
	b.WriteString(fmt.Sprintf("%-20s %19s\n", trx.InvoiceNumber, trx.Timestamp.Format("2006-01-02 15:04")))
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, it := range trx.Items {
		b.WriteString(fmt.Sprintf("%-40s\n", it.ProductName))
		b.WriteString(fmt.Sprintf("  %d x %-14s %17s\n", it.Quantity, money(it.UnitPrice), money(it.LineTotal)))
	}
	b.WriteString(strings.Repeat("-", 40) + "\n")
	b.WriteString(fmt.Sprintf("%-20s %19s\n", "TOTAL", money(trx.Total)))
	b.WriteString(fmt.Sprintf("%-20s %19s\n", "PAYMENT", strings.ToUpper(trx.PaymentMethod)))
	b.WriteString(strings.Repeat("=", 40) + "\n")
	if st.ReceiptFooter != "" {
		b.WriteString(center(st.ReceiptFooter, 40) + "\n")
	}

	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(b.String()))
}

// moneyFormatter renders amounts with the configured ISO currency unit,
// defaulting to rupiah.
func moneyFormatter(code string) func(float64) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.IDR
	}
	printer := message.NewPrinter(language.Indonesian)
	return func(v float64) string {
		return printer.Sprintf("%v", currency.NarrowSymbol(unit.Amount(v)))
	}
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}
