package companyinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mddomain "stock_scanner/internal/feature/marketdata/domain"
)

func newServer(t *testing.T, path string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, path, r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) Config {
	return Config{TWSEBaseURL: url, TPExBaseURL: url, Timeout: time.Second}
}

// TestClient_FetchCompanies_TWSE は上場フィードの解析と非普通株の除外を検証します。
func TestClient_FetchCompanies_TWSE(t *testing.T) {
	t.Parallel()

	body := `[
		{"出表日期":"1131018","公司代號":"2330","公司名稱":"台灣積體電路製造股份有限公司","公司簡稱":"台積電","產業別":"24"},
		{"公司代號":"1101","公司簡稱":"台泥","產業別":"01"},
		{"公司代號":"2330","公司簡稱":"台積電","產業別":"24"},
		{"公司代號":"00878","公司簡稱":"國泰永續高股息","產業別":""},
		{"公司代號":"9999","公司簡稱":"","產業別":"99"}
	]`
	srv := newServer(t, "/opendata/t187ap03_L", http.StatusOK, body)

	got, err := NewTWSEClient(testConfig(srv.URL), srv.Client()).FetchCompanies(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2330", got[0].Code)
	assert.Equal(t, "台積電", got[0].Name)
	assert.Equal(t, "半導體業", got[0].Sector)
	assert.Equal(t, "TWSE", got[0].Market)
	assert.Equal(t, 2330, got[0].SortKey)
	assert.True(t, got[0].IsActive)
	assert.Equal(t, "水泥工業", got[1].Sector)
	assert.Equal(t, "9999", got[2].Name, "empty name falls back to the code")
	assert.Equal(t, "99", got[2].Sector, "unknown industry code is kept verbatim")
}

// TestClient_FetchCompanies_TPEx は上櫃フィードのフィールド名で解析されることを検証します。
func TestClient_FetchCompanies_TPEx(t *testing.T) {
	t.Parallel()

	body := `[{"Date":"1131018","SecuritiesCompanyCode":"3105","CompanyName":"穩懋半導體股份有限公司","CompanyAbbreviation":"穩懋","SecuritiesIndustryCode":"24"}]`
	srv := newServer(t, "/mopsfin_t187ap03_O", http.StatusOK, body)

	c := NewTPExClient(testConfig(srv.URL), srv.Client())
	got, err := c.FetchCompanies(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "TPEX", c.Market())
	require.Len(t, got, 1)
	assert.Equal(t, "穩懋", got[0].Name)
	assert.Equal(t, "半導體業", got[0].Sector)
}

// TestClient_FetchCompanies_Errors は上流エラーが ErrUpstreamUnavailable に包まれることを検証します。
func TestClient_FetchCompanies_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusServiceUnavailable, body: `oops`},
		{name: "not an array", status: http.StatusOK, body: `{"stat":"error"}`},
		{name: "html maintenance page", status: http.StatusOK, body: `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, "/opendata/t187ap03_L", tt.status, tt.body)
			_, err := NewTWSEClient(testConfig(srv.URL), srv.Client()).FetchCompanies(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, mddomain.ErrUpstreamUnavailable)
		})
	}
}

// TestSectorName は産業別コードの変換を検証します。
func TestSectorName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "24", want: "半導體業"},
		{in: " 1 ", want: "水泥工業"},
		{in: "半導體業", want: "半導體業"},
		{in: "", want: ""},
		{in: "77", want: "77"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SectorName(tt.in))
		})
	}
}

// TestIsCommonStock は銘柄コードの判定を検証します。
func TestIsCommonStock(t *testing.T) {
	t.Parallel()

	assert.True(t, isCommonStock("2330"))
	assert.True(t, isCommonStock("00A1"))
	assert.False(t, isCommonStock("00878"))
	assert.False(t, isCommonStock("23a0"))
	assert.False(t, isCommonStock(""))
}
