package provider

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"couponhub/pkg/models"
)

// The two integrations disagree on response envelopes: lists come back as
// either a bare array or {"items": [...]}, a by-id lookup as an array or
// {"data": [...]}. Field names drift as well, so individual coupons are
// normalized via path probing instead of fixed structs. The original item
// is always kept as the opaque passthrough.

func listItems(raw json.RawMessage) []gjson.Result {
	root := gjson.ParseBytes(raw)
	if root.IsArray() {
		return root.Array()
	}
	if items := root.Get("items"); items.IsArray() {
		return items.Array()
	}
	if data := root.Get("data"); data.IsArray() {
		return data.Array()
	}
	return nil
}

func firstString(item gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := item.Get(p); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func normalizeCoupon(item gjson.Result) models.Coupon {
	return models.Coupon{
		ID:             firstString(item, "id", "Id", "offer_id"),
		Title:          firstString(item, "title", "name", "Name"),
		Subtitle:       firstString(item, "subtitle", "Subtitle"),
		CategoryID:     firstString(item, "category_id", "CategoryId"),
		CategoryName:   firstString(item, "category_name", "CategoryName"),
		ExpiresAt:      firstString(item, "expires_at", "expiration_date", "EndDate"),
		ProviderFields: json.RawMessage(item.Raw),
	}
}

func normalizeCouponList(raw json.RawMessage) []models.Coupon {
	items := listItems(raw)
	out := make([]models.Coupon, 0, len(items))
	for _, item := range items {
		c := normalizeCoupon(item)
		if c.ID == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func normalizeCategoryList(raw json.RawMessage) []models.Category {
	items := listItems(raw)
	out := make([]models.Category, 0, len(items))
	for _, item := range items {
		cat := models.Category{
			ID:   firstString(item, "Id", "id"),
			Name: firstString(item, "Name", "name"),
		}
		if cat.ID == "" || cat.Name == "" {
			continue
		}
		out = append(out, cat)
	}
	return out
}
