// Package finmind は FinMind 形式の補助データ API（三大法人売買）クライアントを提供します。
// トークン未設定の場合は無効として扱い、呼び出し側はTWSE T86にフォールバックします。
package finmind

import (
	"os"
	"time"
)

const defaultBaseURL = "https://api.finmindtrade.com/api/v4"

// Config はFinMind APIクライアントの設定を保持します。
type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// LoadConfig は環境変数からFinMindの設定を読み込みます。
func LoadConfig() Config {
	base := os.Getenv("FINMIND_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return Config{
		Token:   os.Getenv("FINMIND_TOKEN"),
		BaseURL: base,
		Timeout: 8 * time.Second,
	}
}
