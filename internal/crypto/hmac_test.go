package crypto

import (
	"net/url"
	"strings"
	"testing"
)

// Vector from the Binance API signature documentation.
func TestSignKnownVector(t *testing.T) {
	s := &QuerySigner{
		Key:    "vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	}
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := s.Sign(payload); got != want {
		t.Fatalf("Sign() = %s, want %s", got, want)
	}
}

func TestSignedQueryAppendsTimestampAndSignature(t *testing.T) {
	s := &QuerySigner{Key: "k", Secret: "secret"}
	params := url.Values{}
	params.Set("asset", "USDT")
	params.Set("amount", "100")

	q := s.signedQueryMillis(params, 1700000000000)

	if !strings.Contains(q, "timestamp=1700000000000") {
		t.Errorf("query %q missing timestamp", q)
	}
	parts := strings.Split(q, "&signature=")
	if len(parts) != 2 {
		t.Fatalf("query %q has no single signature suffix", q)
	}
	if got := s.Sign(parts[0]); got != parts[1] {
		t.Errorf("signature mismatch: query carries %s, recomputed %s", parts[1], got)
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	s := &QuerySigner{Key: "abcdefgh", Secret: "zyxwvuts"}
	out := s.String()
	if strings.Contains(out, "efgh") || strings.Contains(out, "vuts") {
		t.Errorf("String() leaked credentials: %s", out)
	}
}
