// Package handler はscannerフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stock_scanner/internal/feature/scanner/domain"
	"stock_scanner/internal/feature/scanner/domain/entity"
	"stock_scanner/internal/feature/scanner/transport/http/dto"
	"stock_scanner/internal/feature/scanner/usecase"
)

// ScanUsecase はスキャンパイプラインのユースケースインターフェースです。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type ScanUsecase interface {
	Defaults() entity.ScanSettings
	RunDiscovery(ctx context.Context) ([]entity.AnalysisResult, error)
	RunFilter(ctx context.Context, codes []string, settings entity.ScanSettings) ([]entity.AnalysisResult, error)
	RunExpert(ctx context.Context, code string, settings entity.ScanSettings) (entity.AnalysisResult, error)
	RunFullScan(ctx context.Context, req usecase.FullScanRequest) (entity.ScanReport, error)
}

// Query parameters that override the scan thresholds.
const (
	QueryVolumeRatio = "volume_ratio"
	QueryMAGap       = "ma_gap"
	QueryBreakoutPct = "breakout_pct"
)

// ScanHandler はスキャンAPIのHTTPリクエストを処理します。
type ScanHandler struct {
	uc ScanUsecase
}

// NewScanHandler は新しい ScanHandler を作成します。
func NewScanHandler(uc ScanUsecase) *ScanHandler {
	return &ScanHandler{uc: uc}
}

// Discovery は当日の出来高上位銘柄を返します。
//
// エンドポイント例:
// GET /scan/discovery
func (h *ScanHandler) Discovery(c *gin.Context) {
	results, err := h.uc.RunDiscovery(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResultList{Count: len(results), Settings: h.uc.Defaults(), Results: results})
}

// Filter は指定銘柄を浅い履歴で評価し、上位を返します。
//
// エンドポイント例:
// POST /scan/filter?volume_ratio=3 {"codes":["2330","2454"]}
func (h *ScanHandler) Filter(c *gin.Context) {
	settings, err := h.settings(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var req dto.FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	results, err := h.uc.RunFilter(c.Request.Context(), req.Codes, settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResultList{Count: len(results), Settings: settings, Results: results})
}

// Expert は1銘柄を完全な履歴で評価します。
//
// エンドポイント例:
// GET /scan/expert/2330
func (h *ScanHandler) Expert(c *gin.Context) {
	settings, err := h.settings(c)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.uc.RunExpert(c.Request.Context(), c.Param("code"), settings)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Full は3段階のスキャンを実行し、レポートを返します。
//
// エンドポイント例:
// GET /scan/full?market=TWSE&sector=半導體業
func (h *ScanHandler) Full(c *gin.Context) {
	settings, err := h.settings(c)
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := h.uc.RunFullScan(c.Request.Context(), usecase.FullScanRequest{
		Market:   c.Query("market"),
		Sector:   c.Query("sector"),
		Settings: settings,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// settings はプロセス既定値にクエリの上書きを適用します。
func (h *ScanHandler) settings(c *gin.Context) (entity.ScanSettings, error) {
	s := h.uc.Defaults()
	for _, o := range []struct {
		key string
		dst *float64
	}{
		{QueryVolumeRatio, &s.VolumeRatio},
		{QueryMAGap, &s.MAGap},
		{QueryBreakoutPct, &s.BreakoutPct},
	} {
		raw, ok := c.GetQuery(o.key)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return s, fmt.Errorf("%w: %s=%q", domain.ErrInvalidSettings, o.key, raw)
		}
		*o.dst = v
	}
	return s, s.Validate()
}

// writeError はエラーをHTTPステータスに対応付けて書き込みます。
func writeError(c *gin.Context, err error) {
	c.JSON(StatusFor(err), dto.ErrorResponse{Error: err.Error()})
}

// StatusFor maps a scan error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case usecase.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMarketDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
