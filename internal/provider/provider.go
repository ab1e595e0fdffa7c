// Package provider is the gateway to the backend coupon provider. One of
// two mutually exclusive integrations (location-identified or
// merchant-identified) is selected once at construction; callers never
// branch on the mode themselves.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"couponhub/internal/events"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

// Identity is the read-only view of the current session the gateway needs.
// It is always a live lookup, never a cached copy.
type Identity interface {
	StoreID() string
	CardNumber() string
	AccessToken() string
	RefreshToken() string
	HasTokens() bool
}

type CouponQuery struct {
	Limit      int
	Offset     int
	CategoryID string
	SortBy     string
}

type ClippedQuery struct {
	Limit  int
	Offset int
	SortBy string
}

// CouponPage is the normalized list response. HasMore is the only paging
// signal: location mode pages in fixed batches, merchant mode loads
// everything at once and always reports HasMore=false.
type CouponPage struct {
	Items      []models.Coupon `json:"items"`
	HasMore    bool            `json:"has_more"`
	NextOffset int             `json:"next_offset"`
}

type ClipResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Provider interface {
	Mode() utils.ProviderMode
	GetCategories(ctx context.Context) ([]models.Category, error)
	GetCoupons(ctx context.Context, q CouponQuery) (*CouponPage, error)
	// GetCouponByID returns (nil, nil) when the provider positively
	// reports the offer gone; an error means the answer is unknown.
	GetCouponByID(ctx context.Context, offerID, locationID string) (*models.Coupon, error)
	SearchCoupons(ctx context.Context, term string, limit, offset int) (*CouponPage, error)
	ClipCoupon(ctx context.Context, offerID, cardNumber string) (*ClipResult, error)
	GetClippedCoupons(ctx context.Context, q ClippedQuery) (*CouponPage, error)
	IsAuthenticated() bool
}

// New selects the concrete integration for the configured mode. The choice
// is final for the process lifetime.
func New(cfg utils.ProviderConfig, id Identity, bus *events.Bus) (Provider, error) {
	t := NewTransport(cfg.APIBaseURL, cfg.APIKey, time.Duration(cfg.Timeout))

	switch cfg.Mode {
	case utils.LocationMode:
		return &locationProvider{t: t, id: id, bus: bus, pageSize: cfg.PageSize}, nil
	case utils.MerchantMode:
		return &merchantProvider{t: t, id: id, bus: bus, merchantID: cfg.MerchantID}, nil
	default:
		return nil, fmt.Errorf("provider: unknown mode %q", cfg.Mode)
	}
}
