// Package catalog orchestrates coupon and category fetches through the
// provider gateway: taxonomy memoization, paginated accumulation with
// dedup, and best-effort category annotation.
package catalog

import (
	"context"
	"log"
	"strings"
	"sync"

	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/pkg/models"
)

// fallbackCategoryName stamps coupons nothing else could resolve.
const fallbackCategoryName = "Coupons"

type FetchOptions struct {
	Limit    int
	Offset   int
	Category string // human-readable category name; empty or "All Coupons" means unfiltered
}

type Loader struct {
	mu sync.Mutex
	p  provider.Provider

	// gen guards against stale in-flight responses: it is bumped on every
	// invalidation and a fetch result from an older generation is dropped.
	gen int

	categories     []models.Category
	nameToID       map[string]string
	idToName       map[string]string
	weeklySpecials *models.Category
	catsLoaded     bool

	coupons []models.Coupon
	seen    map[string]struct{}

	onPage func([]models.Coupon)
}

func NewLoader(p provider.Provider, bus *events.Bus) *Loader {
	l := &Loader{p: p, seen: make(map[string]struct{})}
	if bus != nil {
		bus.Subscribe(func(e events.Event) {
			if e.Type == events.IdentityChanged {
				l.Invalidate()
			}
		})
	}
	return l
}

// OnPage registers a hook invoked with every successfully fetched coupon
// page; the entitlement cache uses it to pick up clipped flags the
// provider embeds in catalog responses. Pages from a superseded
// generation never reach the hook.
func (l *Loader) OnPage(fn func([]models.Coupon)) {
	l.mu.Lock()
	l.onPage = fn
	l.mu.Unlock()
}

// Invalidate drops the memoized taxonomy and the accumulated coupon list.
// In-flight fetches started before the call are discarded when they land.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.gen++
	l.catsLoaded = false
	l.categories = nil
	l.nameToID = nil
	l.idToName = nil
	l.weeklySpecials = nil
	l.coupons = nil
	l.seen = make(map[string]struct{})
	l.mu.Unlock()
}

// FetchCategories returns the category list with the synthetic
// "All Coupons" entry prepended. The taxonomy is fetched once and memoized
// until the identity or store changes; on gateway failure the synthetic
// entry alone is returned so browsing can continue unfiltered.
func (l *Loader) FetchCategories(ctx context.Context) ([]models.Category, error) {
	l.mu.Lock()
	if l.catsLoaded {
		cats := l.categories
		l.mu.Unlock()
		return cats, nil
	}
	gen := l.gen
	l.mu.Unlock()

	fetched, err := l.p.GetCategories(ctx)
	if err != nil {
		log.Printf("[catalog] fetch categories: %v", err)
		return []models.Category{{Name: models.AllCouponsCategory}}, nil
	}

	cats := make([]models.Category, 0, len(fetched)+1)
	cats = append(cats, models.Category{Name: models.AllCouponsCategory})
	cats = append(cats, fetched...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		log.Printf("[catalog] discarding stale category response")
		return cats, nil
	}

	l.categories = cats
	l.nameToID = make(map[string]string, len(fetched))
	l.idToName = make(map[string]string, len(fetched))
	for _, c := range fetched {
		l.nameToID[c.Name] = c.ID
		l.idToName[c.ID] = c.Name
		lower := strings.ToLower(c.Name)
		if l.weeklySpecials == nil && (strings.Contains(lower, "weekly") || strings.Contains(lower, "specials")) {
			c := c
			l.weeklySpecials = &c
		}
	}
	l.catsLoaded = true
	return cats, nil
}

// resolveCategoryID maps a human label to the provider's category id.
// "All Coupons" and unknown labels resolve to no filter at all.
func (l *Loader) resolveCategoryID(name string) string {
	if name == "" || name == models.AllCouponsCategory {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nameToID[name]
}

// FetchCoupons loads one page through the gateway. Offset zero replaces
// the accumulated list; a non-zero offset appends with id-based dedup
// against everything already loaded. Results from a superseded generation
// are returned to the caller but never applied to loader state.
func (l *Loader) FetchCoupons(ctx context.Context, opts FetchOptions) (*provider.CouponPage, error) {
	categoryID := l.resolveCategoryID(opts.Category)

	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	page, err := l.p.GetCoupons(ctx, provider.CouponQuery{
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		CategoryID: categoryID,
	})
	if err != nil {
		return nil, err
	}

	l.annotate(page.Items, opts.Category)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		log.Printf("[catalog] discarding stale coupon page (offset %d)", opts.Offset)
		return page, nil
	}

	if opts.Offset == 0 {
		l.coupons = append([]models.Coupon(nil), page.Items...)
		l.seen = make(map[string]struct{}, len(page.Items))
		for _, c := range page.Items {
			l.seen[c.ID] = struct{}{}
		}
	} else {
		for _, c := range page.Items {
			if _, dup := l.seen[c.ID]; dup {
				continue
			}
			l.seen[c.ID] = struct{}{}
			l.coupons = append(l.coupons, c)
		}
	}
	onPage := l.onPage
	l.mu.Unlock()

	// only pages that survived the generation check reach the hook; a
	// stale page must not repopulate a consumer that was just reset
	if onPage != nil {
		onPage(page.Items)
	}
	return page, nil
}

// FetchByCategoryName resolves a label before fetching; "All Coupons" and
// labels the taxonomy does not know short-circuit to an unfiltered fetch.
func (l *Loader) FetchByCategoryName(ctx context.Context, name string, limit, offset int) (*provider.CouponPage, error) {
	if l.resolveCategoryID(name) == "" {
		return l.FetchCoupons(ctx, FetchOptions{Limit: limit, Offset: offset})
	}
	return l.FetchCoupons(ctx, FetchOptions{Limit: limit, Offset: offset, Category: name})
}

// FetchWeeklySpecials fetches the weekly-specials category when the
// taxonomy names one, falling back to an unfiltered fetch.
func (l *Loader) FetchWeeklySpecials(ctx context.Context, limit, offset int) (*provider.CouponPage, error) {
	l.mu.Lock()
	loaded := l.catsLoaded
	l.mu.Unlock()
	if !loaded {
		if _, err := l.FetchCategories(ctx); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	ws := l.weeklySpecials
	l.mu.Unlock()

	if ws == nil {
		return l.FetchCoupons(ctx, FetchOptions{Limit: limit, Offset: offset})
	}
	return l.FetchCoupons(ctx, FetchOptions{Limit: limit, Offset: offset, Category: ws.Name})
}

// Search runs a subtitle search through the gateway without touching the
// accumulated catalog list.
func (l *Loader) Search(ctx context.Context, term string, limit, offset int) (*provider.CouponPage, error) {
	page, err := l.p.SearchCoupons(ctx, term, limit, offset)
	if err != nil {
		return nil, err
	}
	l.annotate(page.Items, "")
	return page, nil
}

// Coupons returns a copy of the accumulated deduplicated list.
func (l *Loader) Coupons() []models.Coupon {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Coupon(nil), l.coupons...)
}

// Categories returns the memoized list, or just the synthetic entry before
// the first successful taxonomy fetch.
func (l *Loader) Categories() []models.Category {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.catsLoaded {
		return []models.Category{{Name: models.AllCouponsCategory}}
	}
	return l.categories
}

// annotate stamps every coupon with a best-effort category name. Priority:
// the category explicitly requested for this fetch, then the coupon's own
// category id resolved through the taxonomy, then a provider-supplied
// name, then the generic fallback. A filtered fetch must never show a
// coupon's native category instead of the one the caller asked for.
func (l *Loader) annotate(items []models.Coupon, requested string) {
	l.mu.Lock()
	idToName := l.idToName
	l.mu.Unlock()

	for i := range items {
		switch {
		case requested != "" && requested != models.AllCouponsCategory:
			items[i].CategoryName = requested
		case items[i].CategoryID != "" && idToName[items[i].CategoryID] != "":
			items[i].CategoryName = idToName[items[i].CategoryID]
		case items[i].CategoryName != "":
			// keep the provider's own label
		default:
			items[i].CategoryName = fallbackCategoryName
		}
	}
}
