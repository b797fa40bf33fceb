package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stock_scanner/internal/feature/symbollist/domain/entity"
	"stock_scanner/internal/feature/symbollist/transport/http/dto"
)

// SymbolUsecase は銘柄情報に関するユースケースのインターフェースです。
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type SymbolUsecase interface {
	ListActiveSymbols(ctx context.Context, sector string) ([]entity.Symbol, error)
	ListSectors(ctx context.Context) ([]string, error)
}

// SymbolHandler は銘柄情報に関するHTTPリクエストを処理します。
type SymbolHandler struct {
	uc SymbolUsecase
}

// NewSymbolHandler は新しい SymbolHandler を作成します。
func NewSymbolHandler(uc SymbolUsecase) *SymbolHandler {
	return &SymbolHandler{uc: uc}
}

// List は有効な銘柄の一覧を返すAPIです。sector クエリで業種を絞り込めます。
// Usecaseでエラーが発生した場合は500 Internal Server Errorを返します。
func (h *SymbolHandler) List(c *gin.Context) {
	symbols, err := h.uc.ListActiveSymbols(c.Request.Context(), c.Query("sector"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]dto.SymbolItem, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, dto.SymbolItem{Code: s.Code, Name: s.Name, Market: s.Market, Sector: s.Sector})
	}
	c.JSON(http.StatusOK, out)
}

// Sectors は業種名の一覧を返すAPIです。
func (h *SymbolHandler) Sectors(c *gin.Context) {
	sectors, err := h.uc.ListSectors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sectors == nil {
		sectors = []string{}
	}
	c.JSON(http.StatusOK, dto.SectorList{Sectors: sectors})
}
