package models

import "encoding/json"

// Coupon is the normalized offer shape returned by the provider gateway.
// Provider-specific fields that the engine does not interpret are carried
// through untouched in ProviderFields so the UI (and the clip path) can
// still read them.
type Coupon struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle,omitempty"`
	CategoryID     string          `json:"category_id,omitempty"`
	CategoryName   string          `json:"category_name,omitempty"`
	ExpiresAt      string          `json:"expires_at,omitempty"`
	ProviderFields json.RawMessage `json:"provider_fields,omitempty"`
}

// Category is one entry of the coupon taxonomy. The synthetic
// "All Coupons" entry exists only locally and never reaches a provider.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AllCouponsCategory is the synthetic unfiltered category label.
const AllCouponsCategory = "All Coupons"
