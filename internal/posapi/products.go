package posapi

import (
	"net/http"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/domain"
	"github.com/talkincode/tinypos/internal/webserver"
)

type productPayload struct {
	Code     string  `json:"code" validate:"required,min=1,max=32"`
	Name     string  `json:"name" validate:"required,min=1,max=200"`
	Price    float64 `json:"price" validate:"gte=0"`
	Stock    int     `json:"stock"`
	Category string  `json:"category" validate:"omitempty,max=100"`
}

type stockPayload struct {
	Delta int `json:"delta" validate:"required"`
}

func registerProductRoutes() {
	webserver.ApiGET("/pos/products", listProducts)
	webserver.ApiGET("/pos/products/export/csv", exportProductsCsv)
	webserver.ApiPOST("/pos/products/import/csv", importProductsCsv)
	webserver.ApiGET("/pos/products/:code", getProduct)
	webserver.ApiPOST("/pos/products", saveProduct)
	webserver.ApiDELETE("/pos/products/:code", deleteProduct)
	webserver.ApiPOST("/pos/products/:code/stock", adjustStock)
	webserver.ApiGET("/pos/barcode/:code", lookupBarcode)
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.Product{})
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		db = db.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ? OR LOWER(category) LIKE ?", like, like, like)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	var products []domain.Product
	if err := db.Order("code").Offset((page - 1) * pageSize).Limit(pageSize).Find(&products).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	return paged(c, products, total, page, pageSize)
}

func getProduct(c echo.Context) error {
	p, err := GetEngine(c).GetProductByCode(strings.TrimSpace(c.Param("code")))
	if err != nil {
		return engineError(c, err)
	}
	return ok(c, p)
}

func saveProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	p := domain.Product{
		Code:     strings.TrimSpace(payload.Code),
		Name:     strings.TrimSpace(payload.Name),
		Price:    payload.Price,
		Stock:    payload.Stock,
		Category: strings.TrimSpace(payload.Category),
	}
	if err := GetEngine(c).UpsertProduct(&p); err != nil {
		return engineError(c, err)
	}
	return ok(c, p)
}

func deleteProduct(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	code := strings.TrimSpace(c.Param("code"))
	if err := GetEngine(c).DeleteProduct(code); err != nil {
		return engineError(c, err)
	}
	return ok(c, map[string]interface{}{"code": code})
}

func adjustStock(c echo.Context) error {
	var payload stockPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse stock parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	stock, err := GetEngine(c).AdjustStock(strings.TrimSpace(c.Param("code")), payload.Delta)
	if err != nil {
		return engineError(c, err)
	}
	return ok(c, map[string]interface{}{"stock": stock})
}

func lookupBarcode(c echo.Context) error {
	p, err := GetEngine(c).LookupBarcode(strings.TrimSpace(c.Param("code")))
	if err != nil {
		return engineError(c, err)
	}
	return ok(c, p)
}

func exportProductsCsv(c echo.Context) error {
	products, err := GetEngine(c).ListProducts()
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}

	data, err := gocsv.MarshalString(&products)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "CSV_ERROR", "Failed to encode products", err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="products.csv"`)
	return c.Blob(http.StatusOK, "text/csv", []byte(data))
}

func importProductsCsv(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "A csv file upload is required", nil)
	}
	src, err := file.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to open upload", err.Error())
	}
	defer src.Close()

	var products []domain.Product
	if err := gocsv.Unmarshal(src, &products); err != nil {
		return fail(c, http.StatusBadRequest, "CSV_ERROR", "Unable to parse csv", err.Error())
	}

	eng := GetEngine(c)
	imported := 0
	for i := range products {
		if err := eng.UpsertProduct(&products[i]); err != nil {
			return fail(c, http.StatusUnprocessableEntity, "IMPORT_ERROR",
				"Import aborted at row "+products[i].Code, err.Error())
		}
		imported++
	}
	return ok(c, map[string]interface{}{"imported": imported})
}
