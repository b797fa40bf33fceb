// Package twse は台湾証券取引所（上場市場）の公開 JSON API クライアントを提供します。
package twse

import (
	"os"
	"time"
)

const defaultBaseURL = "https://www.twse.com.tw"

// Config はTWSE APIクライアントの設定を保持します。
type Config struct {
	BaseURL  string         // APIのベースURL（例: "https://www.twse.com.tw"）
	Timeout  time.Duration  // HTTPリクエストタイムアウト
	Location *time.Location // 「当日」を決めるタイムゾーン（nil なら Asia/Taipei）
	Lookback int            // 最新の取引日を探して遡る暦日数
}

// LoadConfig は環境変数からTWSEの設定を読み込みます。
func LoadConfig() Config {
	base := os.Getenv("TWSE_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return Config{
		BaseURL:  base,
		Timeout:  8 * time.Second,
		Lookback: defaultLookback,
	}
}

const defaultLookback = 10

func (c Config) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	if loc, err := time.LoadLocation("Asia/Taipei"); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*60*60)
}
