// Package router builds the gin route table.
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	scanhandler "stock_scanner/internal/feature/scanner/transport/handler"
	symbollisthandler "stock_scanner/internal/feature/symbollist/transport/handler"
	"stock_scanner/internal/platform/http/handler"
	jwtmw "stock_scanner/internal/platform/jwt"
	"stock_scanner/internal/platform/metrics"
)

// Deps are the handlers and middleware the router mounts. Symbol may be nil.
type Deps struct {
	Scan      *scanhandler.ScanHandler
	Symbol    *symbollisthandler.SymbolHandler
	Metrics   *metrics.Registry
	JWTSecret string
	Checks    map[string]handler.Check
}

// NewRouter builds the engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), d.Metrics.GinMiddleware())

	// 認証不要
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.GET("/readyz", handler.Readiness(2*time.Second, d.Checks))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	scan := r.Group("/scan")
	{
		scan.GET("/discovery", d.Scan.Discovery)
		scan.POST("/filter", d.Scan.Filter)
		scan.GET("/expert/:code", d.Scan.Expert)
	}

	// 認証必須のルート
	auth := r.Group("/")
	auth.Use(jwtmw.AuthRequired(d.JWTSecret))
	{
		auth.GET("/scan/full", d.Scan.Full)
		if d.Symbol != nil {
			auth.GET("/symbols", d.Symbol.List)
			auth.GET("/symbols/sectors", d.Symbol.Sectors)
		}
	}

	return r
}
