package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meiduo/mall-backend/pkg/config"
)

const (
	tokenVersion  = 1
	tokenIssuer   = "mall-cart"
	tokenAudience = "anonymous-cart"
)

var tokenSigningMethod = jwt.SigningMethodHS256

type tokenItem struct {
	SKUID    int64 `json:"s"`
	Count    int   `json:"c"`
	Selected bool  `json:"x,omitempty"`
}

type tokenClaims struct {
	Version int         `json:"ver"`
	Items   []tokenItem `json:"items"`
	jwt.RegisteredClaims
}

// TokenCodec turns an anonymous cart into a signed, versioned token and back.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec from the cart config.
func NewTokenCodec(cfg config.CartConfig) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return nil, fmt.Errorf("cart token secret required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &TokenCodec{secret: []byte(cfg.TokenSecret), ttl: ttl, now: time.Now}, nil
}

// Encode signs entries into a fresh token. The token id changes on every
// write, so a merge marker keyed by it only guards that exact token.
func (c *TokenCodec) Encode(entries []Entry) (string, error) {
	sorted := append([]Entry(nil), entries...)
	sortEntries(sorted)

	items := make([]tokenItem, 0, len(sorted))
	for _, e := range sorted {
		items = append(items, tokenItem{SKUID: e.SKUID, Count: e.Count, Selected: e.Selected})
	}

	now := c.now().UTC()
	claims := tokenClaims{
		Version: tokenVersion,
		Items:   items,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(tokenSigningMethod, claims).SignedString(c.secret)
}

// Decode verifies the token and returns its entries and token id. An empty
// token decodes to an empty cart.
func (c *TokenCodec) Decode(token string) ([]Entry, string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "", nil
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != tokenSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{tokenSigningMethod.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, "", fmt.Errorf("parse cart token: %w", err)
	}
	if claims.Version != tokenVersion {
		return nil, "", fmt.Errorf("unsupported cart token version %d", claims.Version)
	}

	entries := make([]Entry, 0, len(claims.Items))
	for _, item := range claims.Items {
		if item.SKUID <= 0 || item.Count <= 0 {
			return nil, "", fmt.Errorf("cart token carries invalid entry sku=%d count=%d", item.SKUID, item.Count)
		}
		entries = append(entries, Entry{SKUID: item.SKUID, Count: item.Count, Selected: item.Selected})
	}
	return entries, claims.ID, nil
}
