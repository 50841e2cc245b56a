// Package webserver hosts the local terminal API and the offline-cached
// application shell on one listener.
package webserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/talkincode/tinypos/internal/app"
)

var server *WebServer

type WebServer struct {
	appCtx *app.Application
	root   *echo.Echo
	api    *echo.Group
}

// Init builds the echo instance, middleware and route groups. Handlers are
// registered afterwards through the Api helpers.
func Init(appc *app.Application) {
	server = &WebServer{appCtx: appc}
	server.initRouter()
}

func Listen() error {
	return server.listen()
}

func Shutdown(ctx context.Context) error {
	return server.root.Shutdown(ctx)
}

func (s *WebServer) initRouter() {
	s.root = echo.New()
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.Debug = s.appCtx.Config().System.Debug
	s.root.JSONSerializer = &JsoniterSerializer{}
	s.root.Validator = &CustomValidator{validate: validator.New()}

	s.root.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
	}))
	s.root.Use(ZapLoggerMiddleware())

	jwtConfig := echojwt.Config{
		SigningKey: []byte(s.appCtx.Config().Web.Secret),
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/login" || c.Path() == "/api/status"
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]interface{}{
				"code": "UNAUTHORIZED",
				"msg":  "missing or invalid token",
			})
		},
	}
	s.api = s.root.Group("/api", echojwt.WithConfig(jwtConfig))

	// everything outside /api is the application shell, answered through
	// the offline cache
	s.root.GET("/*", s.shellHandler)
}

func (s *WebServer) listen() error {
	cfg := s.appCtx.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.S().Infof("web server listening on %s", addr)
	return s.root.Start(addr)
}

// shellHandler resolves shell assets through the offline registry so the
// terminal keeps its UI when the asset origin is unreachable.
func (s *WebServer) shellHandler(c echo.Context) error {
	reg := s.appCtx.Offline()
	if reg == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "offline layer unavailable")
	}

	origin := strings.TrimRight(s.appCtx.Config().Offline.Origin, "/")
	target := origin + c.Request().URL.RequestURI()
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, target, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	for _, h := range []string{"Accept", "Accept-Encoding", "Sec-Fetch-Mode", "Sec-Fetch-Dest", "If-None-Match"} {
		if v := c.Request().Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := reg.RoundTrip(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			c.Response().Header().Add(k, v)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response(), resp.Body)
	return err
}

// ApiGET registers an authenticated GET handler under /api.
func ApiGET(path string, h echo.HandlerFunc) {
	server.api.GET(path, h)
}

// ApiPOST registers an authenticated POST handler under /api.
func ApiPOST(path string, h echo.HandlerFunc) {
	server.api.POST(path, h)
}

// ApiPUT registers an authenticated PUT handler under /api.
func ApiPUT(path string, h echo.HandlerFunc) {
	server.api.PUT(path, h)
}

// ApiDELETE registers an authenticated DELETE handler under /api.
func ApiDELETE(path string, h echo.HandlerFunc) {
	server.api.DELETE(path, h)
}

// AppCtx exposes the application context to request handlers.
func AppCtx() *app.Application {
	return server.appCtx
}
