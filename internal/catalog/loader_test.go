package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"couponhub/internal/clipped"
	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

// gatewayStub implements provider.Provider in-process so loader behavior
// can be tested without HTTP.
type gatewayStub struct {
	categories []models.Category
	pages      map[int][]models.Coupon
	lastQuery  provider.CouponQuery
	catCalls   int
	release    chan struct{} // when set, GetCoupons blocks until closed
	entered    chan struct{} // when set, closed as GetCoupons is reached
}

func (g *gatewayStub) Mode() utils.ProviderMode { return utils.LocationMode }

func (g *gatewayStub) GetCategories(ctx context.Context) ([]models.Category, error) {
	g.catCalls++
	return g.categories, nil
}

func (g *gatewayStub) GetCoupons(ctx context.Context, q provider.CouponQuery) (*provider.CouponPage, error) {
	if g.entered != nil {
		close(g.entered)
		g.entered = nil
	}
	if g.release != nil {
		<-g.release
	}
	g.lastQuery = q
	items := g.pages[q.Offset]
	return &provider.CouponPage{Items: items, HasMore: len(items) > 0, NextOffset: q.Offset + len(items)}, nil
}

func (g *gatewayStub) GetCouponByID(ctx context.Context, offerID, locationID string) (*models.Coupon, error) {
	return nil, nil
}

func (g *gatewayStub) SearchCoupons(ctx context.Context, term string, limit, offset int) (*provider.CouponPage, error) {
	return &provider.CouponPage{}, nil
}

func (g *gatewayStub) ClipCoupon(ctx context.Context, offerID, cardNumber string) (*provider.ClipResult, error) {
	return &provider.ClipResult{Success: true}, nil
}

func (g *gatewayStub) GetClippedCoupons(ctx context.Context, q provider.ClippedQuery) (*provider.CouponPage, error) {
	return &provider.CouponPage{}, nil
}

func (g *gatewayStub) IsAuthenticated() bool { return false }

func coupons(ids ...string) []models.Coupon {
	out := make([]models.Coupon, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Coupon{ID: id, Title: "Offer " + id})
	}
	return out
}

func TestPaginationDedup(t *testing.T) {
	g := &gatewayStub{pages: map[int][]models.Coupon{
		0: coupons("1", "2", "3"),
		3: coupons("3", "4", "5"),
	}}
	l := NewLoader(g, nil)

	_, err := l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})
	require.NoError(t, err)
	_, err = l.FetchCoupons(context.Background(), FetchOptions{Offset: 3})
	require.NoError(t, err)

	got := l.Coupons()
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestOffsetZeroReplaces(t *testing.T) {
	g := &gatewayStub{pages: map[int][]models.Coupon{0: coupons("1", "2")}}
	l := NewLoader(g, nil)

	_, _ = l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})
	g.pages[0] = coupons("8", "9")
	_, _ = l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})

	got := l.Coupons()
	require.Len(t, got, 2)
	require.Equal(t, "8", got[0].ID)
}

func TestCategoryRoundTrip(t *testing.T) {
	g := &gatewayStub{
		categories: []models.Category{{ID: "7", Name: "Dairy"}},
		pages:      map[int][]models.Coupon{0: coupons("1")},
	}
	l := NewLoader(g, nil)

	cats, err := l.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.AllCouponsCategory, cats[0].Name, "synthetic entry is always first")
	require.Len(t, cats, 2)

	_, err = l.FetchByCategoryName(context.Background(), "Dairy", 25, 0)
	require.NoError(t, err)
	require.Equal(t, "7", g.lastQuery.CategoryID)
}

func TestAllCouponsNeverSentAsFilter(t *testing.T) {
	g := &gatewayStub{
		categories: []models.Category{{ID: "7", Name: "Dairy"}},
		pages:      map[int][]models.Coupon{0: coupons("1")},
	}
	l := NewLoader(g, nil)
	_, _ = l.FetchCategories(context.Background())

	_, err := l.FetchByCategoryName(context.Background(), models.AllCouponsCategory, 25, 0)
	require.NoError(t, err)
	require.Empty(t, g.lastQuery.CategoryID)

	_, err = l.FetchByCategoryName(context.Background(), "No Such Category", 25, 0)
	require.NoError(t, err)
	require.Empty(t, g.lastQuery.CategoryID)
}

func TestCategoriesMemoizedUntilInvalidate(t *testing.T) {
	g := &gatewayStub{categories: []models.Category{{ID: "7", Name: "Dairy"}}}
	bus := events.NewBus(nil)
	l := NewLoader(g, bus)

	_, _ = l.FetchCategories(context.Background())
	_, _ = l.FetchCategories(context.Background())
	require.Equal(t, 1, g.catCalls)

	bus.PublishIdentityChanged("store-change")
	_, _ = l.FetchCategories(context.Background())
	require.Equal(t, 2, g.catCalls)
}

func TestAnnotationPriority(t *testing.T) {
	g := &gatewayStub{
		categories: []models.Category{{ID: "7", Name: "Dairy"}, {ID: "9", Name: "Bakery"}},
	}
	l := NewLoader(g, nil)
	_, _ = l.FetchCategories(context.Background())

	// explicit request wins over the coupon's own category
	g.pages = map[int][]models.Coupon{0: {
		{ID: "1", CategoryID: "9", CategoryName: "Native"},
	}}
	page, err := l.FetchCoupons(context.Background(), FetchOptions{Category: "Dairy"})
	require.NoError(t, err)
	require.Equal(t, "Dairy", page.Items[0].CategoryName)

	// no request: category id resolved through the taxonomy
	g.pages[0] = []models.Coupon{{ID: "2", CategoryID: "9", CategoryName: "Native"}}
	page, err = l.FetchCoupons(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "Bakery", page.Items[0].CategoryName)

	// unknown id: provider's own label survives
	g.pages[0] = []models.Coupon{{ID: "3", CategoryID: "404", CategoryName: "Native"}}
	page, err = l.FetchCoupons(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "Native", page.Items[0].CategoryName)

	// nothing at all: generic fallback
	g.pages[0] = []models.Coupon{{ID: "4"}}
	page, err = l.FetchCoupons(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, fallbackCategoryName, page.Items[0].CategoryName)
}

func TestStalePageDiscardedAfterInvalidate(t *testing.T) {
	g := &gatewayStub{
		pages:   map[int][]models.Coupon{0: coupons("1", "2")},
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	l := NewLoader(g, nil)
	entered := g.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})
	}()

	<-entered      // the fetch holds its generation snapshot
	l.Invalidate() // e.g. the user switched stores mid-load
	close(g.release)
	<-done

	require.Empty(t, l.Coupons(), "response from a superseded generation must not be applied")
}

func TestStalePageDoesNotReachPageHook(t *testing.T) {
	g := &gatewayStub{
		pages: map[int][]models.Coupon{0: {
			{ID: "old-clip", Title: "Offer", ProviderFields: json.RawMessage(`{"clipped":true}`)},
		}},
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	l := NewLoader(g, nil)
	entered := g.entered

	cache := clipped.NewCache(g, nil, "")
	l.OnPage(cache.SyncPage)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})
	}()

	<-entered
	// sign-out lands while the page is in flight
	l.Invalidate()
	cache.Reset()
	close(g.release)
	<-done

	require.False(t, cache.IsClipped("old-clip"), "stale page must not repopulate the reset cache")
	require.Empty(t, cache.All())
}

func TestOnPageHookSeesEveryFetchedPage(t *testing.T) {
	g := &gatewayStub{pages: map[int][]models.Coupon{
		0: coupons("1", "2"),
		2: coupons("3"),
	}}
	l := NewLoader(g, nil)

	var seen []string
	l.OnPage(func(items []models.Coupon) {
		for _, c := range items {
			seen = append(seen, c.ID)
		}
	})

	_, err := l.FetchCoupons(context.Background(), FetchOptions{Offset: 0})
	require.NoError(t, err)
	_, err = l.FetchCoupons(context.Background(), FetchOptions{Offset: 2})
	require.NoError(t, err)

	require.Equal(t, []string{"1", "2", "3"}, seen)
}
