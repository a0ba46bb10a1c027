package cart

import cartsvc "github.com/meiduo/mall-backend/internal/cart"

type listResponse struct {
	Items []cartsvc.Item `json:"items"`
}

type entryResponse struct {
	SKUID    int64 `json:"sku_id"`
	Count    int   `json:"count"`
	Selected bool  `json:"selected"`
}

type selectionRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

type mergeResponse struct {
	Merged int `json:"merged"`
}
