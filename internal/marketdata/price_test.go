package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"norvia-broker/internal/apperr"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"btc":       "BTCUSDT",
		"BTC/USDT":  "BTCUSDT",
		"eth-usdc":  "ETHUSDC",
		" sol ":     "SOLUSDT",
		"USDT":      "USDTUSDT",
		"":          "",
		"doge_busd": "DOGEBUSD",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTickerClientPrice(t *testing.T) {
	var gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50000.12000000"}`))
	}))
	defer srv.Close()

	c := NewTickerClient(srv.URL+"/api/v3/ticker/price", time.Second)
	price, err := c.Price(context.Background(), "btc")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if gotSymbol != "BTCUSDT" {
		t.Errorf("symbol = %q", gotSymbol)
	}
	if price.String() != "50000.12" {
		t.Errorf("price = %s", price)
	}
}

func TestTickerClientFailuresAreExternal(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"zero": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"0"}`))
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"1"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewTickerClient(srv.URL, 100*time.Millisecond)
			_, err := c.Price(context.Background(), "BTC")
			if !errors.Is(err, apperr.ErrExternalService) {
				t.Fatalf("expected external service failure, got %v", err)
			}
		})
	}
}
