package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couponhub/internal/clipped"
	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/internal/provider/providertest"
	"couponhub/internal/session"
	"couponhub/pkg/kvstore"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

func newManager(t *testing.T, srv *providertest.Server, cfg utils.ProviderConfig) (*session.Manager, *events.Bus, *kvstore.Store) {
	t.Helper()
	cfg.APIBaseURL = srv.URL()
	cfg.APIKey = "test-key"
	tr := provider.NewTransport(cfg.APIBaseURL, cfg.APIKey, 2*time.Second)
	kv := kvstore.NewMemory()
	bus := events.NewBus(nil)
	return session.NewManager(tr, kv, bus, cfg), bus, kv
}

func TestRequestCodeValidatesPhone(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	err := m.RequestCode(context.Background(), "12345")
	assert.ErrorIs(t, err, session.ErrInvalidPhone)
	assert.Equal(t, session.PhaseAnonymous, m.Phase())
}

func TestRequestCodeAcceptsFormattedPhone(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	err := m.RequestCode(context.Background(), "(555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCodeSent, m.Phase())
}

func TestVerifyCodeValidatesPin(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	_, err := m.VerifyCode(context.Background(), "5551234567", "12")
	assert.ErrorIs(t, err, session.ErrInvalidCode)
}

func TestVerifyCodePersistsIdentity(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, bus, kv := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode, AppID: "app-1"})
	m.SetStore("42")

	var changes []string
	bus.Subscribe(func(evt events.Event) {
		if evt.Type == events.IdentityChanged {
			changes = append(changes, evt.Data["reason"])
		}
	})

	profile, err := m.VerifyCode(context.Background(), "555-123-4567", "1234")
	require.NoError(t, err)
	assert.Equal(t, "CARD-777", profile.CardNumber)
	assert.Equal(t, "Pat", profile.FirstName)

	assert.Equal(t, "at-test-token", m.AccessToken())
	assert.Equal(t, "rt-test-token", m.RefreshToken())
	assert.Equal(t, "CARD-777", m.CardNumber())
	assert.Equal(t, "5551234567", m.LoyaltyNumber())
	assert.True(t, m.HasTokens())
	assert.Equal(t, session.PhaseVerified, m.Phase())
	assert.Equal(t, []string{"sign-in"}, changes)

	// card resolution is scoped to the selected store
	q := srv.LastQuery("/check-user")
	assert.Equal(t, "42", q.Get("location_id"))
	assert.Equal(t, "app-1", q.Get("app_id"))
	assert.Equal(t, "CARD-777", kv.Get("card_number"))
}

func TestVerifyCodeRejectsWrongPin(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	_, err := m.VerifyCode(context.Background(), "5551234567", "9999")
	require.Error(t, err)
	assert.False(t, m.HasTokens())
}

func TestSignOutRetainsStore(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, bus, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})
	m.SetStore("42")

	_, err := m.VerifyCode(context.Background(), "5551234567", "1234")
	require.NoError(t, err)

	var reasons []string
	bus.Subscribe(func(evt events.Event) {
		if evt.Type == events.IdentityChanged {
			reasons = append(reasons, evt.Data["reason"])
		}
	})

	m.SignOut()

	assert.False(t, m.HasTokens())
	assert.Empty(t, m.CardNumber())
	assert.Equal(t, "42", m.StoreID(), "store selection is preference, not identity")
	assert.Equal(t, session.PhaseAnonymous, m.Phase())
	assert.Equal(t, []string{"sign-out"}, reasons)
}

func TestUpdateProfileRequiresTokens(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	err := m.UpdateProfile(context.Background(), models.Profile{FirstName: "Pat"})
	assert.ErrorIs(t, err, session.ErrNotSignedIn)
}

func TestUpdateProfileSendsRefreshToken(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	m, _, _ := newManager(t, srv, utils.ProviderConfig{Mode: utils.LocationMode})

	_, err := m.VerifyCode(context.Background(), "5551234567", "1234")
	require.NoError(t, err)

	err = m.UpdateProfile(context.Background(), models.Profile{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	assert.Equal(t, session.PhaseProfileComplete, m.Phase())
	assert.Equal(t, "rt-test-token", srv.LastQuery("/customer").Get("refresh_token"))
}

func TestTokensSurviveRestart(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	cfg := utils.ProviderConfig{Mode: utils.LocationMode, APIBaseURL: srv.URL(), APIKey: "test-key"}
	tr := provider.NewTransport(cfg.APIBaseURL, cfg.APIKey, 2*time.Second)
	kv := kvstore.NewMemory()
	bus := events.NewBus(nil)

	m := session.NewManager(tr, kv, bus, cfg)
	_, err := m.VerifyCode(context.Background(), "5551234567", "1234")
	require.NoError(t, err)

	// a fresh manager over the same kv comes up already verified
	restarted := session.NewManager(tr, kv, bus, cfg)
	assert.Equal(t, session.PhaseVerified, restarted.Phase())
	assert.Equal(t, "CARD-777", restarted.CardNumber())
}

// Signing in flips the merchant gateway from anonymous to identified and
// the entitlement cache picks the change up from the broadcast alone.
func TestSignInUnlocksEntitlements(t *testing.T) {
	srv := providertest.NewServer()
	defer srv.Close()
	srv.Offers = []providertest.Offer{
		{ID: "o1", Title: "Cereal", Clipped: true},
		{ID: "o2", Title: "Yogurt"},
	}

	cfg := utils.ProviderConfig{
		Mode:       utils.MerchantMode,
		APIBaseURL: srv.URL(),
		APIKey:     "test-key",
		MerchantID: "m-9",
	}
	tr := provider.NewTransport(cfg.APIBaseURL, cfg.APIKey, 2*time.Second)
	bus := events.NewBus(nil)
	m := session.NewManager(tr, kvstore.NewMemory(), bus, cfg)

	p, err := provider.New(cfg, m, bus)
	require.NoError(t, err)
	cache := clipped.NewCache(p, bus, clipped.SweepRemoveOnFailure)

	// anonymous: load is a soft no-op
	assert.False(t, cache.Load(context.Background()))
	assert.Empty(t, cache.All())

	_, err = m.VerifyCode(context.Background(), "5551234567", "1234")
	require.NoError(t, err)

	// the identity broadcast kicked off a reload in the background
	deadline := time.Now().Add(2 * time.Second)
	for cache.State() != clipped.StateReady && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, []string{"o1"}, cache.All())
	assert.True(t, cache.IsClipped("o1"))
	assert.Zero(t, srv.ClipCalls, "reload must never mutate provider state")
}
