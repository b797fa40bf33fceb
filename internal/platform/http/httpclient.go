// Package http は外部API呼び出し用のHTTPクライアントとヘルスチェックを提供します。
package http

import (
	"net"
	"net/http"
	"time"
)

// UserAgent は取引所APIへ送るUser-Agentです。一部の取引所はGo標準のUser-Agentを拒否します。
const UserAgent = "Mozilla/5.0 (compatible; stock-scanner/1.0)"

// NewHTTPClient は外部API呼び出し用に設定されたHTTPクライアントを作成します。
//
// 設定:
//   - Proxy: 環境変数（HTTP_PROXYなど）が設定されている場合に使用
//   - Dialer.Timeout: TCP接続タイムアウト（デフォルトより短い）
//   - MaxIdleConns: 最大アイドル接続数
//   - Client.Timeout: リクエスト全体のタイムアウト（呼び出し元から渡される）
//
// 注意:
//   - http.DefaultClientにはタイムアウトがないため、常にカスタムクライアントを使用すること
//   - レート制限は呼び出し側（Aggregator）で行う
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: NewUserAgentTransport(t)}
}

// UserAgentTransport は User-Agent が未設定のリクエストに UserAgent を付与する RoundTripper です。
type UserAgentTransport struct {
	next http.RoundTripper
}

// NewUserAgentTransport は next を包む UserAgentTransport を返します。next が nil の場合は http.DefaultTransport です。
func NewUserAgentTransport(next http.RoundTripper) *UserAgentTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &UserAgentTransport{next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}
