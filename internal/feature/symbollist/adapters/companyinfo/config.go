// Package companyinfo は取引所の会社基本資料オープンデータから銘柄・業種を取得します。
package companyinfo

import (
	"os"
	"time"
)

const (
	defaultTWSEURL = "https://openapi.twse.com.tw/v1"
	defaultTPExURL = "https://www.tpex.org.tw/openapi/v1"
)

// Config は会社情報フィードの設定を保持します。
type Config struct {
	TWSEBaseURL string        // 上場会社フィードのベースURL
	TPExBaseURL string        // 上櫃会社フィードのベースURL
	Timeout     time.Duration // HTTPリクエストタイムアウト
}

// LoadConfig は環境変数から設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{
		TWSEBaseURL: os.Getenv("COMPANYINFO_TWSE_URL"),
		TPExBaseURL: os.Getenv("COMPANYINFO_TPEX_URL"),
		Timeout:     15 * time.Second,
	}
	if cfg.TWSEBaseURL == "" {
		cfg.TWSEBaseURL = defaultTWSEURL
	}
	if cfg.TPExBaseURL == "" {
		cfg.TPExBaseURL = defaultTPExURL
	}
	return cfg
}
