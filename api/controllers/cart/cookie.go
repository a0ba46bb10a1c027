package cart

import (
	"net/http"

	"github.com/meiduo/mall-backend/api/middleware"
	cartsvc "github.com/meiduo/mall-backend/internal/cart"
	"github.com/meiduo/mall-backend/pkg/config"
)

func cookieName(cfg config.CartConfig) string {
	if cfg.CookieName == "" {
		return "cart"
	}
	return cfg.CookieName
}

func cookieToken(r *http.Request, cfg config.CartConfig) string {
	c, err := r.Cookie(cookieName(cfg))
	if err != nil {
		return ""
	}
	return c.Value
}

func ownerFromRequest(r *http.Request, cfg config.CartConfig) cartsvc.Owner {
	if userID := middleware.UserIDFromContext(r.Context()); userID > 0 {
		return cartsvc.Owner{UserID: userID}
	}
	return cartsvc.Owner{Token: cookieToken(r, cfg)}
}

// writeOwnerCookie refreshes the anonymous cart cookie. Logged-in owners
// keep their cart server side and get no cookie.
func writeOwnerCookie(w http.ResponseWriter, cfg config.CartConfig, owner cartsvc.Owner) {
	if !owner.Anonymous() {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    owner.Token,
		Path:     "/",
		MaxAge:   int(cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, cfg config.CartConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
