package posapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/talkincode/tinypos/internal/engine"
)

func testContext(t *testing.T, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		target   string
		page     int
		pageSize int
	}{
		{"/api/pos/products", 1, 20},
		{"/api/pos/products?page=3&page_size=50", 3, 50},
		{"/api/pos/products?page=-1&page_size=0", 1, 20},
		{"/api/pos/products?page_size=9999", 1, 100},
	}
	for _, tc := range cases {
		c, _ := testContext(t, tc.target)
		page, pageSize := parsePagination(c)
		assert.Equal(t, tc.page, page, tc.target)
		assert.Equal(t, tc.pageSize, pageSize, tc.target)
	}
}

func TestEngineErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{engine.ErrProductNotFound, http.StatusNotFound},
		{engine.ErrUserNotFound, http.StatusNotFound},
		{engine.ErrTransactionNotFound, http.StatusNotFound},
		{engine.ErrUserExists, http.StatusConflict},
		{engine.ErrInvalidCredentials, http.StatusUnauthorized},
		{engine.ErrWeakPassword, http.StatusUnprocessableEntity},
		{engine.ErrLastAdmin, http.StatusConflict},
		{engine.ErrEmptyCart, http.StatusBadRequest},
		{engine.ErrBarcodeTooShort, http.StatusBadRequest},
		{engine.ErrCartLineNotFound, http.StatusNotFound},
		// unrecognized database errors must not masquerade as not-found
		{errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, rec := testContext(t, "/api/pos/anything")
		assert.NoError(t, engineError(c, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestReceiptCenter(t *testing.T) {
	assert.Equal(t, "  abcd", center("abcd", 8)[:6])
	assert.Equal(t, "too wide for the line", center("too wide for the line", 8))
}
