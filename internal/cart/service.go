package cart

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db/models"
	pkgerrors "github.com/meiduo/mall-backend/pkg/errors"
	"github.com/meiduo/mall-backend/pkg/logger"
)

type skuCatalog interface {
	Exists(ctx context.Context, id int64) (bool, error)
	FindSKUs(ctx context.Context, ids []int64) (map[int64]models.SKU, error)
}

// Service exposes cart operations for anonymous and logged-in owners.
// Mutations return the owner to hand back to the client; for anonymous
// owners that carries the re-encoded token.
type Service interface {
	AddOrIncrement(ctx context.Context, owner Owner, in EntryInput) (Owner, error)
	SetEntry(ctx context.Context, owner Owner, in EntryInput) (Owner, error)
	RemoveEntry(ctx context.Context, owner Owner, skuID int64) (Owner, error)
	List(ctx context.Context, owner Owner) ([]Item, error)
	SetAllSelected(ctx context.Context, owner Owner, selected bool) (Owner, error)
	ListSelected(ctx context.Context, userID int64) ([]Entry, error)
	Clear(ctx context.Context, userID int64, skuIDs []int64) error
	Merge(ctx context.Context, token string, userID int64) int
}

type service struct {
	users      userStore
	kv         KeyValueStore
	codec      *TokenCodec
	catalog    skuCatalog
	logg       *logger.Logger
	validate   *validator.Validate
	maxEntries int
}

// NewService builds a cart service over the redis store, token codec and catalog.
func NewService(kv KeyValueStore, codec *TokenCodec, catalog skuCatalog, cfg config.CartConfig, logg *logger.Logger) (Service, error) {
	if kv == nil {
		return nil, fmt.Errorf("key value store required")
	}
	if codec == nil {
		return nil, fmt.Errorf("cart token codec required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &service{
		users:      userStore{kv: kv},
		kv:         kv,
		codec:      codec,
		catalog:    catalog,
		logg:       logg,
		validate:   newValidator(),
		maxEntries: maxEntries,
	}, nil
}

func (s *service) AddOrIncrement(ctx context.Context, owner Owner, in EntryInput) (Owner, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return owner, err
	}

	entries, err := s.load(ctx, owner)
	if err != nil {
		return owner, err
	}
	current, exists := entries[in.SKUID]
	if !exists && len(entries) >= s.maxEntries {
		return owner, s.fullCart()
	}
	if current.Count+in.Count > MaxEntryCount {
		return owner, pkgerrors.New(pkgerrors.CodeValidation, "cart line quantity exceeded").
			WithDetails(map[string]any{"sku_id": in.SKUID, "count": current.Count, "max_count": MaxEntryCount})
	}

	if owner.Anonymous() {
		entries[in.SKUID] = Entry{SKUID: in.SKUID, Count: current.Count + in.Count, Selected: in.selected()}
		return s.reencode(owner, entries)
	}
	if err := s.users.increment(ctx, owner.UserID, in.SKUID, in.Count, in.selected()); err != nil {
		return owner, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
	}
	return owner, nil
}

func (s *service) SetEntry(ctx context.Context, owner Owner, in EntryInput) (Owner, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return owner, err
	}

	entries, err := s.load(ctx, owner)
	if err != nil {
		return owner, err
	}
	if _, exists := entries[in.SKUID]; !exists && len(entries) >= s.maxEntries {
		return owner, s.fullCart()
	}

	entry := Entry{SKUID: in.SKUID, Count: in.Count, Selected: in.selected()}
	if owner.Anonymous() {
		entries[in.SKUID] = entry
		return s.reencode(owner, entries)
	}
	if err := s.users.set(ctx, owner.UserID, entry); err != nil {
		return owner, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart")
	}
	return owner, nil
}

func (s *service) RemoveEntry(ctx context.Context, owner Owner, skuID int64) (Owner, error) {
	if skuID <= 0 {
		return owner, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"sku_id": "must be positive"})
	}

	if owner.Anonymous() {
		entries, err := s.load(ctx, owner)
		if err != nil {
			return owner, err
		}
		delete(entries, skuID)
		return s.reencode(owner, entries)
	}
	if err := s.users.remove(ctx, owner.UserID, skuID); err != nil {
		return owner, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart entry")
	}
	return owner, nil
}

// List returns the cart joined with current catalog names and prices. Entries
// whose sku is no longer sold are left out.
func (s *service) List(ctx context.Context, owner Owner) ([]Item, error) {
	entries, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Item{}, nil
	}

	ordered := entriesFromMap(entries)
	ids := make([]int64, 0, len(ordered))
	for _, e := range ordered {
		ids = append(ids, e.SKUID)
	}
	skus, err := s.catalog.FindSKUs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(ordered))
	for _, e := range ordered {
		sku, ok := skus[e.SKUID]
		if !ok {
			continue
		}
		items = append(items, Item{
			SKUID:    e.SKUID,
			Name:     sku.Name,
			Price:    sku.Price,
			Count:    e.Count,
			Selected: e.Selected,
			Amount:   sku.Price.Mul(decimal.NewFromInt(int64(e.Count))),
		})
	}
	return items, nil
}

func (s *service) SetAllSelected(ctx context.Context, owner Owner, selected bool) (Owner, error) {
	if owner.Anonymous() {
		entries, err := s.load(ctx, owner)
		if err != nil {
			return owner, err
		}
		for id, e := range entries {
			e.Selected = selected
			entries[id] = e
		}
		return s.reencode(owner, entries)
	}
	if err := s.users.selectAll(ctx, owner.UserID, selected); err != nil {
		return owner, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart selection")
	}
	return owner, nil
}

// ListSelected returns the selected server-side entries in sku order.
func (s *service) ListSelected(ctx context.Context, userID int64) ([]Entry, error) {
	if userID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	entries, err := s.users.entries(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	selected := make([]Entry, 0, len(entries))
	for _, e := range entriesFromMap(entries) {
		if e.Selected {
			selected = append(selected, e)
		}
	}
	return selected, nil
}

// Clear removes the given skus from both the quantity hash and the selection set.
func (s *service) Clear(ctx context.Context, userID int64, skuIDs []int64) error {
	if len(skuIDs) == 0 {
		return nil
	}
	if err := s.users.remove(ctx, userID, skuIDs...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart entries")
	}
	return nil
}

// Merge folds an anonymous cart into the user's server-side cart at login.
// Quantities add up and the anonymous selection flag wins. A token is merged
// at most once; later calls with the same token do nothing. Merge never
// fails: problems are logged and the number of merged entries is returned.
func (s *service) Merge(ctx context.Context, token string, userID int64) int {
	if userID <= 0 || strings.TrimSpace(token) == "" {
		return 0
	}
	ctx = s.logg.WithUserID(ctx, userID)

	entries, tokenID, err := s.codec.Decode(token)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "anonymous cart token rejected during merge")
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	if tokenID != "" {
		first, err := s.kv.SetNX(ctx, s.kv.CartMergeKey(tokenID), userID, s.codec.ttl)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart merge marker unavailable")
		} else if !first {
			s.logg.Debug(s.logg.WithField(ctx, "token_id", tokenID), "anonymous cart already merged")
			return 0
		}
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SKUID)
	}
	known, err := s.catalog.FindSKUs(ctx, ids)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalog unavailable during cart merge")
		known = nil
	}

	merged := 0
	for _, e := range entries {
		if known != nil {
			if _, ok := known[e.SKUID]; !ok {
				continue
			}
		}
		if err := s.users.increment(ctx, userID, e.SKUID, e.Count, e.Selected); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "sku_id", e.SKUID), "merge cart entry", err)
			continue
		}
		merged++
	}
	s.logg.Info(s.logg.WithField(ctx, "merged", merged), "anonymous cart merged")
	return merged
}

func (s *service) load(ctx context.Context, owner Owner) (map[int64]Entry, error) {
	if !owner.Anonymous() {
		entries, err := s.users.entries(ctx, owner.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		return entries, nil
	}

	entries, _, err := s.codec.Decode(owner.Token)
	if err != nil {
		// An expired or tampered token is an empty cart; the next write replaces it.
		s.logg.Debug(s.logg.WithField(ctx, "error", err.Error()), "discarding anonymous cart token")
		entries = nil
	}
	out := make(map[int64]Entry, len(entries))
	for _, e := range entries {
		out[e.SKUID] = e
	}
	return out, nil
}

func (s *service) reencode(owner Owner, entries map[int64]Entry) (Owner, error) {
	token, err := s.codec.Encode(entriesFromMap(entries))
	if err != nil {
		return owner, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart token")
	}
	return Owner{Token: token}, nil
}

func (s *service) checkInput(ctx context.Context, in EntryInput) error {
	if err := s.validate.Struct(in); err != nil {
		return formatValidationErrors(err)
	}
	return s.ensureSKU(ctx, in.SKUID)
}

func (s *service) ensureSKU(ctx context.Context, skuID int64) error {
	ok, err := s.catalog.Exists(ctx, skuID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrItemNotFound, "sku not found").
			WithDetails(map[string]any{"sku_id": skuID})
	}
	return nil
}

func (s *service) fullCart() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is full").
		WithDetails(map[string]any{"max_entries": s.maxEntries})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			switch fieldErr.Tag() {
			case "required":
				details[fieldErr.Field()] = "is required"
			case "gt":
				details[fieldErr.Field()] = "must be greater than " + fieldErr.Param()
			case "gte":
				details[fieldErr.Field()] = "must be at least " + fieldErr.Param()
			case "lte":
				details[fieldErr.Field()] = "must be at most " + fieldErr.Param()
			default:
				details[fieldErr.Field()] = "is invalid"
			}
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

