package cart

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meiduo/mall-backend/pkg/config"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(config.CartConfig{TokenSecret: "cart-secret", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestTokenCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Encode([]Entry{
		{SKUID: 9, Count: 1, Selected: false},
		{SKUID: 3, Count: 2, Selected: true},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	entries, tokenID, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tokenID == "" {
		t.Fatal("expected token id")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0] != (Entry{SKUID: 3, Count: 2, Selected: true}) {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1] != (Entry{SKUID: 9, Count: 1, Selected: false}) {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestTokenCodecEmptyToken(t *testing.T) {
	entries, tokenID, err := newTestCodec(t).Decode("  ")
	if err != nil || entries != nil || tokenID != "" {
		t.Fatalf("expected empty cart, got %v %q %v", entries, tokenID, err)
	}
}

func TestTokenCodecRejectsForeignSignature(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewTokenCodec(config.CartConfig{TokenSecret: "someone-else", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, err := other.Encode([]Entry{{SKUID: 1, Count: 1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := codec.Decode(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestTokenCodecRejectsExpired(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issued }
	token, err := codec.Encode([]Entry{{SKUID: 1, Count: 1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, _, err := codec.Decode(token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestTokenCodecRejectsUnknownVersion(t *testing.T) {
	codec := newTestCodec(t)
	claims := tokenClaims{
		Version: 2,
		Items:   []tokenItem{{SKUID: 1, Count: 1}},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(tokenSigningMethod, claims).SignedString([]byte("cart-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, _, err = codec.Decode(token)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestTokenCodecRejectsInvalidEntries(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encode([]Entry{{SKUID: 1, Count: 0}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := codec.Decode(token); err == nil {
		t.Fatal("expected invalid entry error")
	}
}

func TestNewTokenCodecRequiresSecret(t *testing.T) {
	if _, err := NewTokenCodec(config.CartConfig{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
