package price

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func hermesStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestFetchPriceParsesScaledInteger(t *testing.T) {
	// 95432.10 expressed as Pyth's scaled integer with expo -8
	server := hermesStub(t, http.StatusOK, `{
		"parsed": [{
			"id": "abc",
			"price": {"price": "9543210000000", "conf": "100", "expo": -8, "publish_time": 1700000000}
		}]
	}`)
	defer server.Close()

	client := NewPythClient(server.URL)
	price, err := client.FetchPrice(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if math.Abs(price-95432.10) > 1e-6 {
		t.Errorf("expected 95432.10, got %f", price)
	}
}

func TestFetchPriceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty parsed list", http.StatusOK, `{"parsed": []}`},
		{"malformed price", http.StatusOK, `{"parsed": [{"price": {"price": "not-a-number", "expo": -8}}]}`},
		{"non-positive price", http.StatusOK, `{"parsed": [{"price": {"price": "0", "expo": -8}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := hermesStub(t, tt.status, tt.body)
			defer server.Close()

			client := NewPythClient(server.URL)
			if _, err := client.FetchPrice(context.Background(), "BTC/USD"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFetchPriceRejectsUnknownSymbol(t *testing.T) {
	client := NewPythClient("http://127.0.0.1:0")
	if _, err := client.FetchPrice(context.Background(), "DOGE/USD"); err == nil {
		t.Error("expected error for unconfigured symbol")
	}
}

func TestNewPythClientDefaultsBaseURL(t *testing.T) {
	client := NewPythClient("")
	if client.BaseURL == "" {
		t.Error("expected default base URL")
	}
}
