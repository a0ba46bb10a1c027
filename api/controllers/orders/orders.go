package orders

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meiduo/mall-backend/api/middleware"
	"github.com/meiduo/mall-backend/api/responses"
	"github.com/meiduo/mall-backend/api/validators"
	"github.com/meiduo/mall-backend/internal/checkout"
	ordersvc "github.com/meiduo/mall-backend/internal/orders"
	"github.com/meiduo/mall-backend/pkg/enums"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
)

type placeOrderRequest struct {
	AddressID int64  `json:"address_id" validate:"required,gt=0"`
	PayMethod string `json:"pay_method" validate:"required,max=32"`
}

type confirmPaymentRequest struct {
	TradeID string `json:"trade_id" validate:"required,max=100"`
}

// Settlement previews the selected cart lines with freight.
func Settlement(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlement, err := svc.Preview(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}

// Place turns the caller's selected cart entries into an order.
func Place(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payMethod, err := enums.ParsePayMethod(validators.CleanField(payload.PayMethod, 32))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pay_method"))
			return
		}

		order, err := svc.Checkout(r.Context(), userID, payload.AddressID, payMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// Get returns one of the caller's orders with its line items.
func Get(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), userID, chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ConfirmPayment records a verified gateway callback against an order. It is
// mounted behind middleware.PaymentSignature, never behind buyer auth.
func ConfirmPayment(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload confirmPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.ConfirmPayment(r.Context(), chi.URLParam(r, "orderID"), validators.CleanField(payload.TradeID, 100))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

func requireUser(r *http.Request) (int64, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return userID, nil
}
