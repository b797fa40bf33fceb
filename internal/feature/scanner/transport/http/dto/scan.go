// Package dto defines data transfer objects for the scanner HTTP API.
package dto

import "stock_scanner/internal/feature/scanner/domain/entity"

// ErrorResponse はエラーレスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// FilterRequest は POST /scan/filter のリクエストボディです。
type FilterRequest struct {
	Codes []string `json:"codes" binding:"required"`
}

// ResultList は複数銘柄の評価結果レスポンスです。
type ResultList struct {
	Count    int                     `json:"count"`
	Settings entity.ScanSettings     `json:"settings"`
	Results  []entity.AnalysisResult `json:"results"`
}
