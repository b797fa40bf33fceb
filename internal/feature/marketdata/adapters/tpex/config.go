// Package tpex は証券櫃檯買賣中心（上櫃市場）の公開 API クライアントを提供します。
package tpex

import (
	"os"
	"time"
)

const defaultBaseURL = "https://www.tpex.org.tw"

// Config はTPEx APIクライアントの設定を保持します。
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// LoadConfig は環境変数からTPExの設定を読み込みます。
func LoadConfig() Config {
	base := os.Getenv("TPEX_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return Config{BaseURL: base, Timeout: 8 * time.Second}
}
