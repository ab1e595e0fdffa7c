package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"couponhub/internal/events"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

// merchantProvider talks to the merchant-identified integration. There is
// no incremental paging: one call loads the whole catalog, so offsets are
// always zero and HasMore is never reported.
type merchantProvider struct {
	t          *Transport
	id         Identity
	bus        *events.Bus
	merchantID string
}

func (p *merchantProvider) Mode() utils.ProviderMode { return utils.MerchantMode }

func (p *merchantProvider) GetCategories(ctx context.Context) ([]models.Category, error) {
	q := url.Values{}
	q.Set("merchant_id", p.merchantID)

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/categories", q, "", &raw); err != nil {
		return nil, err
	}
	return normalizeCategoryList(raw), nil
}

func (p *merchantProvider) fetchAll(ctx context.Context, limit int, sortBy string, withToken bool) ([]models.Coupon, error) {
	q := url.Values{}
	q.Set("merchant_id", p.merchantID)
	q.Set("limit", strconv.Itoa(bulkLimit(limit)))
	q.Set("sort_by", sortOrDefault(sortBy))
	if withToken {
		if rt := p.id.RefreshToken(); rt != "" {
			q.Set("refresh_token", rt)
		}
	}

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/offers", q, "", &raw); err != nil {
		return nil, err
	}
	return normalizeCouponList(raw), nil
}

func (p *merchantProvider) GetCoupons(ctx context.Context, query CouponQuery) (*CouponPage, error) {
	items, err := p.fetchAll(ctx, query.Limit, query.SortBy, true)
	if err != nil {
		return nil, err
	}

	// The offers route takes no category filter; apply it locally.
	if query.CategoryID != "" {
		filtered := items[:0]
		for _, c := range items {
			if c.CategoryID == query.CategoryID {
				filtered = append(filtered, c)
			}
		}
		items = filtered
	}

	return &CouponPage{Items: items, HasMore: false, NextOffset: 0}, nil
}

func (p *merchantProvider) GetCouponByID(ctx context.Context, offerID, locationID string) (*models.Coupon, error) {
	q := url.Values{}
	q.Set("merchant_id", p.merchantID)
	q.Set("offer_id", offerID)

	var raw json.RawMessage
	if err := p.t.GetJSON(ctx, "/get-offer-by-id", q, "", &raw); err != nil {
		return nil, err
	}

	items := listItems(raw)
	if len(items) == 0 {
		return nil, nil
	}
	c := normalizeCoupon(items[0])
	return &c, nil
}

func (p *merchantProvider) SearchCoupons(ctx context.Context, term string, limit, offset int) (*CouponPage, error) {
	items, err := p.fetchAll(ctx, 0, "", true)
	if err != nil {
		return nil, err
	}

	term = strings.ToLower(term)
	matched := make([]models.Coupon, 0)
	for _, c := range items {
		if strings.Contains(strings.ToLower(c.Title), term) ||
			strings.Contains(strings.ToLower(c.Subtitle), term) {
			matched = append(matched, c)
		}
	}
	return &CouponPage{Items: matched}, nil
}

func (p *merchantProvider) ClipCoupon(ctx context.Context, offerID, cardNumber string) (*ClipResult, error) {
	refresh := p.id.RefreshToken()
	if refresh == "" {
		return nil, fmt.Errorf("clip %s: %w", offerID, ErrAuthenticationRequired)
	}

	q := url.Values{}
	q.Set("offer_id", offerID)
	q.Set("merchant_id", p.merchantID)
	q.Set("refresh_token", refresh)

	var raw json.RawMessage
	if err := p.t.DoJSON(ctx, http.MethodPut, "/clip-coupon", q, nil, "", &raw); err != nil {
		p.bus.PublishCouponError(offerID, CouponUnavailableMessage)
		return nil, fmt.Errorf("clip %s: %w", offerID, ErrCouponUnavailable)
	}

	return &ClipResult{Success: true, Data: raw}, nil
}

// GetClippedCoupons has no dedicated route in merchant mode: the bulk
// offers fetch with the refresh token attached marks clipped items, so the
// server-truth set is recovered by filtering on that flag.
func (p *merchantProvider) GetClippedCoupons(ctx context.Context, query ClippedQuery) (*CouponPage, error) {
	if !p.IsAuthenticated() {
		return nil, fmt.Errorf("clipped list: %w", ErrAuthenticationRequired)
	}

	items, err := p.fetchAll(ctx, query.Limit, query.SortBy, true)
	if err != nil {
		return nil, err
	}

	clipped := make([]models.Coupon, 0)
	for _, c := range items {
		if gjson.GetBytes(c.ProviderFields, "clipped").Bool() ||
			gjson.GetBytes(c.ProviderFields, "is_clipped").Bool() {
			clipped = append(clipped, c)
		}
	}
	return &CouponPage{Items: clipped}, nil
}

func (p *merchantProvider) IsAuthenticated() bool {
	return p.id.AccessToken() != "" && p.id.RefreshToken() != ""
}

func bulkLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
