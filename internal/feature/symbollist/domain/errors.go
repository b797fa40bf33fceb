// Package domain はsymbollistフィーチャーのエラー定義を提供します。
package domain

import "errors"

var (
	// ErrNoCompanies は会社情報フィードが1件も有効な銘柄を返さなかったことを示します。
	ErrNoCompanies = errors.New("company feed returned no listed symbols")
	// ErrSyncFailed はすべての会社情報ソースの同期に失敗したことを示します。
	ErrSyncFailed = errors.New("symbol sync failed for every source")
)
