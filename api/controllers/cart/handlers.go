package cart

import (
	"context"
	"net/http"

	"github.com/meiduo/mall-backend/api/middleware"
	"github.com/meiduo/mall-backend/api/responses"
	"github.com/meiduo/mall-backend/api/validators"
	cartsvc "github.com/meiduo/mall-backend/internal/cart"
	"github.com/meiduo/mall-backend/pkg/config"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
)

// List returns the caller's cart priced from the catalog.
func List(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context(), ownerFromRequest(r, cfg))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []cartsvc.Item{}
		}
		responses.WriteSuccess(w, listResponse{Items: items})
	}
}

// Add increments the quantity of a sku, creating the entry when missing.
func Add(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return mutateEntry(cfg, logg, svc.AddOrIncrement, http.StatusCreated)
}

// Set overwrites the quantity and selection of a sku.
func Set(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return mutateEntry(cfg, logg, svc.SetEntry, http.StatusOK)
}

// Remove drops a sku from the cart.
func Remove(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skuID, err := validators.ParseQueryInt64(r, "sku_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := svc.RemoveEntry(r.Context(), ownerFromRequest(r, cfg), skuID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOwnerCookie(w, cfg, owner)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SelectAll flips the selection flag of every entry.
func SelectAll(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload selectionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := svc.SetAllSelected(r.Context(), ownerFromRequest(r, cfg), *payload.Selected)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOwnerCookie(w, cfg, owner)
		responses.WriteSuccess(w, map[string]bool{"selected": *payload.Selected})
	}
}

// Merge folds the anonymous cart cookie into the logged-in user's cart and
// clears the cookie. It always succeeds for an authenticated caller.
func Merge(svc cartsvc.Service, cfg config.CartConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		merged := svc.Merge(r.Context(), cookieToken(r, cfg), userID)
		clearCookie(w, cfg)
		responses.WriteSuccess(w, mergeResponse{Merged: merged})
	}
}

type entryMutation func(ctx context.Context, owner cartsvc.Owner, in cartsvc.EntryInput) (cartsvc.Owner, error)

func mutateEntry(cfg config.CartConfig, logg *logger.Logger, mutate entryMutation, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input cartsvc.EntryInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := mutate(r.Context(), ownerFromRequest(r, cfg), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOwnerCookie(w, cfg, owner)
		responses.WriteSuccessStatus(w, status, entryResponse{
			SKUID:    input.SKUID,
			Count:    input.Count,
			Selected: input.Selected == nil || *input.Selected,
		})
	}
}
