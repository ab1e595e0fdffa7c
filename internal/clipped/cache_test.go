package clipped

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"couponhub/internal/provider"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

type gatewayStub struct {
	authenticated bool
	serverSet     []string
	gone          map[string]bool
	transportDown bool
	clipErr       error

	clipCalls int
	byIDCalls int
	loadCalls int

	releaseLoad chan struct{} // when set, GetClippedCoupons blocks until closed
	enteredByID chan struct{} // when set, closed as GetCouponByID is reached
	releaseByID chan struct{} // when set, GetCouponByID blocks until closed
}

func (g *gatewayStub) Mode() utils.ProviderMode { return utils.LocationMode }

func (g *gatewayStub) GetCategories(ctx context.Context) ([]models.Category, error) {
	return nil, nil
}

func (g *gatewayStub) GetCoupons(ctx context.Context, q provider.CouponQuery) (*provider.CouponPage, error) {
	return &provider.CouponPage{}, nil
}

func (g *gatewayStub) GetCouponByID(ctx context.Context, offerID, locationID string) (*models.Coupon, error) {
	g.byIDCalls++
	if g.enteredByID != nil {
		close(g.enteredByID)
		g.enteredByID = nil
	}
	if g.releaseByID != nil {
		<-g.releaseByID
	}
	if g.transportDown {
		return nil, fmt.Errorf("verify %s: %w", offerID, provider.ErrTransportFailure)
	}
	if g.gone[offerID] {
		return nil, nil
	}
	return &models.Coupon{ID: offerID}, nil
}

func (g *gatewayStub) SearchCoupons(ctx context.Context, term string, limit, offset int) (*provider.CouponPage, error) {
	return &provider.CouponPage{}, nil
}

func (g *gatewayStub) ClipCoupon(ctx context.Context, offerID, cardNumber string) (*provider.ClipResult, error) {
	g.clipCalls++
	if g.clipErr != nil {
		return nil, g.clipErr
	}
	return &provider.ClipResult{Success: true}, nil
}

func (g *gatewayStub) GetClippedCoupons(ctx context.Context, q provider.ClippedQuery) (*provider.CouponPage, error) {
	g.loadCalls++
	if g.releaseLoad != nil {
		<-g.releaseLoad
	}
	if g.transportDown {
		return nil, provider.ErrTransportFailure
	}
	items := make([]models.Coupon, 0, len(g.serverSet))
	for _, id := range g.serverSet {
		items = append(items, models.Coupon{ID: id})
	}
	return &provider.CouponPage{Items: items}, nil
}

func (g *gatewayStub) IsAuthenticated() bool { return g.authenticated }

func TestLoadReplacesSet(t *testing.T) {
	g := &gatewayStub{authenticated: true, serverSet: []string{"10", "11"}}
	c := NewCache(g, nil, "")

	// seed local state that the server no longer knows about
	c.set["99"] = struct{}{}

	require.True(t, c.Load(context.Background()))
	require.Equal(t, StateReady, c.State())
	require.Equal(t, []string{"10", "11"}, c.All(), "load is a full replace, not a merge")
}

func TestLoadSoftFailsWithoutIdentity(t *testing.T) {
	g := &gatewayStub{authenticated: false}
	c := NewCache(g, nil, "")

	require.False(t, c.Load(context.Background()))
	require.Equal(t, 0, g.loadCalls, "no gateway call without a resolved identity")
	require.Equal(t, StateEmpty, c.State())
}

func TestLoadSingleFlight(t *testing.T) {
	g := &gatewayStub{authenticated: true, serverSet: []string{"10"}, releaseLoad: make(chan struct{})}
	c := NewCache(g, nil, "")

	first := make(chan bool, 1)
	go func() { first <- c.Load(context.Background()) }()

	// wait until the first load is holding the guard
	for c.State() != StateLoading {
		time.Sleep(time.Millisecond)
	}

	require.False(t, c.Load(context.Background()), "reentrant load while loading is a no-op")

	close(g.releaseLoad)
	require.True(t, <-first)
	require.Equal(t, 1, g.loadCalls)
}

func TestLoadTransportFailureReturnsFalse(t *testing.T) {
	g := &gatewayStub{authenticated: true, transportDown: true}
	c := NewCache(g, nil, "")

	require.False(t, c.Load(context.Background()))
	require.Equal(t, StateEmpty, c.State())
}

func TestClipIdempotent(t *testing.T) {
	g := &gatewayStub{authenticated: true}
	c := NewCache(g, nil, "")
	c.set["o-1"] = struct{}{}

	require.NoError(t, c.Clip(context.Background(), "o-1"))
	require.Equal(t, 0, g.clipCalls, "clipping a member must not hit the network")
	require.Equal(t, []string{"o-1"}, c.All())
}

func TestClipAddsOnlyOnGatewaySuccess(t *testing.T) {
	g := &gatewayStub{authenticated: true}
	c := NewCache(g, nil, "")

	require.NoError(t, c.Clip(context.Background(), "o-1"))
	require.True(t, c.IsClipped("o-1"))

	g.clipErr = fmt.Errorf("clip o-2: %w", provider.ErrCouponUnavailable)
	err := c.Clip(context.Background(), "o-2")
	require.ErrorIs(t, err, provider.ErrCouponUnavailable)
	require.False(t, c.IsClipped("o-2"), "failed clip must never grow the set")
}

func TestSweepPrecision(t *testing.T) {
	g := &gatewayStub{authenticated: true, gone: map[string]bool{"11": true}}
	c := NewCache(g, nil, "")
	for _, id := range []string{"10", "11", "12"} {
		c.set[id] = struct{}{}
	}

	require.NoError(t, c.Sweep(context.Background()))
	require.Equal(t, []string{"10", "12"}, c.All())
	require.Equal(t, 3, g.byIDCalls, "one sequential verification per member")
}

func TestSweepSingleFlight(t *testing.T) {
	g := &gatewayStub{
		authenticated: true,
		enteredByID:   make(chan struct{}),
		releaseByID:   make(chan struct{}),
	}
	c := NewCache(g, nil, "")
	c.set["10"] = struct{}{}
	entered := g.enteredByID

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Sweep(context.Background())
	}()

	<-entered // first sweep is mid-verification
	require.NoError(t, c.Sweep(context.Background()), "overlapping sweep returns without verifying")
	require.Equal(t, 1, g.byIDCalls, "the cron schedule and the manual endpoint must not double the call rate")

	close(g.releaseByID)
	<-done
	require.Equal(t, []string{"10"}, c.All())
}

func TestSweepPolicyOnTransportFailure(t *testing.T) {
	g := &gatewayStub{authenticated: true, transportDown: true}
	c := NewCache(g, nil, SweepRemoveOnFailure)
	c.set["10"] = struct{}{}

	require.NoError(t, c.Sweep(context.Background()))
	require.Empty(t, c.All(), "remove policy drops entries on any failure")

	g2 := &gatewayStub{authenticated: true, transportDown: true}
	c2 := NewCache(g2, nil, SweepRetainOnTransient)
	c2.set["10"] = struct{}{}

	require.NoError(t, c2.Sweep(context.Background()))
	require.Equal(t, []string{"10"}, c2.All(), "retain policy keeps entries on transport failure")
}

func TestSyncPageOnlyAdds(t *testing.T) {
	g := &gatewayStub{authenticated: true}
	c := NewCache(g, nil, "")
	c.set["keep"] = struct{}{}

	c.SyncPage([]models.Coupon{
		{ID: "a", ProviderFields: json.RawMessage(`{"clipped":true}`)},
		{ID: "b", ProviderFields: json.RawMessage(`{"clipped":false}`)},
		{ID: "c", ProviderFields: json.RawMessage(`{"is_clipped":true}`)},
	})

	require.Equal(t, []string{"a", "c", "keep"}, c.All())
}
