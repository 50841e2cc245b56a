package posapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/talkincode/tinypos/internal/webserver"
)

type cartItemPayload struct {
	Code     string `json:"code" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gte=1"`
}

type quantityPayload struct {
	Quantity int `json:"quantity" validate:"required,gte=1"`
}

type checkoutPayload struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash card qris"`
}

func registerCartRoutes() {
	webserver.ApiGET("/pos/cart", getCart)
	webserver.ApiPOST("/pos/cart/items", addCartItem)
	webserver.ApiPUT("/pos/cart/items/:code", setCartQuantity)
	webserver.ApiDELETE("/pos/cart/items/:code", removeCartItem)
	webserver.ApiDELETE("/pos/cart", clearCart)
	webserver.ApiPOST("/pos/checkout", checkout)
}

func cartState(c echo.Context) map[string]interface{} {
	cart := GetEngine(c).Cart()
	return map[string]interface{}{
		"lines": cart.Lines(),
		"total": cart.Total(),
	}
}

func getCart(c echo.Context) error {
	return ok(c, cartState(c))
}

func addCartItem(c echo.Context) error {
	var payload cartItemPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	if err := GetEngine(c).AddToCart(strings.TrimSpace(payload.Code), payload.Quantity); err != nil {
		return engineError(c, err)
	}
	return ok(c, cartState(c))
}

func setCartQuantity(c echo.Context) error {
	var payload quantityPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse cart parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	if err := GetEngine(c).SetCartQuantity(strings.TrimSpace(c.Param("code")), payload.Quantity); err != nil {
		return engineError(c, err)
	}
	return ok(c, cartState(c))
}

func removeCartItem(c echo.Context) error {
	if err := GetEngine(c).RemoveFromCart(strings.TrimSpace(c.Param("code"))); err != nil {
		return engineError(c, err)
	}
	return ok(c, cartState(c))
}

func clearCart(c echo.Context) error {
	GetEngine(c).Cart().Clear()
	return ok(c, cartState(c))
}

func checkout(c echo.Context) error {
	var payload checkoutPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse checkout parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	trx, err := GetEngine(c).Checkout(payload.PaymentMethod)
	if err != nil {
		return engineError(c, err)
	}
	return ok(c, trx)
}
