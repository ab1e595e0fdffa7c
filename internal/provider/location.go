package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"couponhub/internal/events"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

// defaultFulfillment is used when an offer carries no fulfillment provider
// tag of its own.
const defaultFulfillment = "md"

// locationProvider talks to the store-located integration: incremental
// fixed-size pages, card number attached only when an identity exists
// (anonymous browsing is allowed).
type locationProvider struct {
	t        *Transport
	id       Identity
	bus      *events.Bus
	pageSize int
}

func (p *locationProvider) Mode() utils.ProviderMode { return utils.LocationMode }

func (p *locationProvider) storeID() (string, error) {
	if s := p.id.StoreID(); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%w: no store selected", ErrMissingConfiguration)
}

func (p *locationProvider) GetCategories(ctx context.Context) ([]models.Category, error) {
	store, err := p.storeID()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("location_id", store)
	if card := p.id.CardNumber(); card != "" {
		q.Set("card_number", card)
	}

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/categories", q, "", &raw); err != nil {
		return nil, err
	}
	return normalizeCategoryList(raw), nil
}

func (p *locationProvider) GetCoupons(ctx context.Context, query CouponQuery) (*CouponPage, error) {
	store, err := p.storeID()
	if err != nil {
		return nil, err
	}

	// The integration pages in fixed batches; the caller's limit is
	// intentionally ignored.
	q := url.Values{}
	q.Set("location_id", store)
	q.Set("limit", strconv.Itoa(p.pageSize))
	q.Set("offset", strconv.Itoa(query.Offset))
	q.Set("sort_by", sortOrDefault(query.SortBy))
	if card := p.id.CardNumber(); card != "" {
		q.Set("card_number", card)
	}
	if query.CategoryID != "" {
		q.Set("category_id", query.CategoryID)
	}

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/offers", q, "", &raw); err != nil {
		return nil, err
	}

	items := normalizeCouponList(raw)
	return &CouponPage{
		Items:      items,
		HasMore:    len(items) == p.pageSize,
		NextOffset: query.Offset + len(items),
	}, nil
}

func (p *locationProvider) GetCouponByID(ctx context.Context, offerID, locationID string) (*models.Coupon, error) {
	store := p.id.StoreID()
	if store == "" {
		store = locationID
	}
	if store == "" {
		return nil, fmt.Errorf("%w: no location for offer lookup", ErrMissingConfiguration)
	}

	q := url.Values{}
	q.Set("location_id", store)
	q.Set("offer_id", offerID)

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/offer-by-id", q, "", &raw); err != nil {
		return nil, err
	}

	items := listItems(raw)
	if len(items) == 0 {
		return nil, nil
	}
	c := normalizeCoupon(items[0])
	return &c, nil
}

func (p *locationProvider) SearchCoupons(ctx context.Context, term string, limit, offset int) (*CouponPage, error) {
	store, err := p.storeID()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("location_id", store)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("subtitle", term)

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/search-offers", q, "", &raw); err != nil {
		return nil, err
	}

	items := normalizeCouponList(raw)
	return &CouponPage{
		Items:      items,
		HasMore:    limit > 0 && len(items) == limit,
		NextOffset: offset + len(items),
	}, nil
}

func (p *locationProvider) ClipCoupon(ctx context.Context, offerID, cardNumber string) (*ClipResult, error) {
	card := cardNumber
	if card == "" {
		card = p.id.CardNumber()
	}
	if card == "" {
		return nil, fmt.Errorf("%w: no card number for clip", ErrMissingConfiguration)
	}

	// The mutating call needs the offer's fulfillment provider tag, which
	// only the by-id lookup exposes.
	fulfillment := defaultFulfillment
	coupon, err := p.GetCouponByID(ctx, offerID, "")
	if err == nil && coupon != nil {
		if tag := gjson.GetBytes(coupon.ProviderFields, "provider"); tag.Exists() {
			fulfillment = tag.String()
		} else if tag := gjson.GetBytes(coupon.ProviderFields, "fulfillment_provider"); tag.Exists() {
			fulfillment = tag.String()
		}
	}

	body := map[string]string{
		"offer_id": offerID,
		"provider": fulfillment,
	}

	var raw json.RawMessage
	if err := p.t.DoJSON(ctx, http.MethodPost, "/offer/"+url.PathEscape(card), nil, body, "", &raw); err != nil {
		p.bus.PublishCouponError(offerID, CouponUnavailableMessage)
		return nil, fmt.Errorf("clip %s: %w", offerID, ErrCouponUnavailable)
	}

	return &ClipResult{Success: true, Data: raw}, nil
}

func (p *locationProvider) GetClippedCoupons(ctx context.Context, query ClippedQuery) (*CouponPage, error) {
	store, err := p.storeID()
	if err != nil {
		return nil, err
	}
	card := p.id.CardNumber()
	if card == "" {
		return nil, fmt.Errorf("%w: no card number for clipped list", ErrMissingConfiguration)
	}

	q := url.Values{}
	q.Set("card_number", card)
	q.Set("location_id", store)
	q.Set("offset", strconv.Itoa(query.Offset))
	q.Set("limit", strconv.Itoa(limitOrDefault(query.Limit)))
	q.Set("sort_by", sortOrDefault(query.SortBy))

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/card-offers", q, "", &raw); err != nil {
		return nil, err
	}

	items := normalizeCouponList(raw)
	return &CouponPage{Items: items, NextOffset: query.Offset + len(items)}, nil
}

// IsAuthenticated in location mode only means enough identity exists for
// identified browsing; it cannot distinguish a full sign-in.
func (p *locationProvider) IsAuthenticated() bool {
	return p.id.CardNumber() != "" && p.id.StoreID() != ""
}

func sortOrDefault(s string) string {
	if s == "" {
		return "newest"
	}
	return s
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
