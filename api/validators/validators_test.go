package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
)

type placeOrderBody struct {
	AddressID int64  `json:"address_id" validate:"required,gt=0"`
	PayMethod string `json:"pay_method" validate:"required,oneof=cash_on_delivery alipay"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address_id":0,"pay_method":"barter"}`))
	var body placeOrderBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["pay_method"] == "" || details["address_id"] == "" {
		t.Fatalf("expected field details, got %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address_id":1,"pay_method":"alipay","coupon":"x"}`))
	var body placeOrderBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"address_id":3,"pay_method":"alipay"}`))
	var body placeOrderBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.AddressID != 3 || body.PayMethod != "alipay" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestParseQueryInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/?sku_id=12", nil)
	if v, err := ParseQueryInt64(req, "sku_id"); err != nil || v != 12 {
		t.Fatalf("expected 12, got %d %v", v, err)
	}
	for _, raw := range []string{"/", "/?sku_id=abc", "/?sku_id=-1"} {
		req := httptest.NewRequest(http.MethodDelete, raw, nil)
		if _, err := ParseQueryInt64(req, "sku_id"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", raw, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"abc":          "abc",
		"Bearer ":      "",
	}
	for raw, want := range cases {
		if got := BearerToken(raw); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCleanField(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  2026101809  ", 6, "202610"},
		{"T-1\x00\n", 0, "T-1"},
		{"支付宝交易号", 3, "支付宝"},
		{" alipay ", 32, "alipay"},
	}
	for _, tc := range cases {
		if got := CleanField(tc.in, tc.max); got != tc.want {
			t.Fatalf("CleanField(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
