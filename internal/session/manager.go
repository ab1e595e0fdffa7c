// Package session owns the authentication lifecycle: phone-based
// one-time-code sign-up, provider token storage, loyalty card resolution
// and identity-change broadcasts. It is the only component that mutates
// identity state; everything else reads through live lookups.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sync"

	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/pkg/kvstore"
	"couponhub/pkg/models"
	"couponhub/pkg/utils"
)

type Phase string

const (
	PhaseAnonymous       Phase = "anonymous"
	PhaseCodeSent        Phase = "code_sent"
	PhaseVerified        Phase = "verified"
	PhaseProfileComplete Phase = "profile_complete"
)

// kv keys; the kv file is the only thing surviving a restart.
const (
	keyAccessToken   = "access_token"
	keyRefreshToken  = "refresh_token"
	keyCardNumber    = "card_number"
	keyStoreID       = "store_id"
	keyLoyaltyNumber = "loyalty_number"
	keyFirstName     = "first_name"
)

var (
	ErrInvalidPhone = errors.New("session: phone number must be 10 digits")
	ErrInvalidCode  = errors.New("session: verification code must be 4 digits")
	ErrNotSignedIn  = errors.New("session: not signed in")
)

var (
	phoneRe    = regexp.MustCompile(`^\d{10}$`)
	pinRe      = regexp.MustCompile(`^\d{4}$`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

type Manager struct {
	mu    sync.Mutex
	t     *provider.Transport
	kv    *kvstore.Store
	bus   *events.Bus
	cfg   utils.ProviderConfig
	phase Phase
}

func NewManager(t *provider.Transport, kv *kvstore.Store, bus *events.Bus, cfg utils.ProviderConfig) *Manager {
	m := &Manager{t: t, kv: kv, bus: bus, cfg: cfg, phase: PhaseAnonymous}
	if m.HasTokens() {
		// tokens survived a restart; the clipped set is reloaded lazily
		m.phase = PhaseVerified
	}
	return m
}

// provider.Identity

func (m *Manager) StoreID() string      { return m.kv.Get(keyStoreID) }
func (m *Manager) CardNumber() string   { return m.kv.Get(keyCardNumber) }
func (m *Manager) AccessToken() string  { return m.kv.Get(keyAccessToken) }
func (m *Manager) RefreshToken() string { return m.kv.Get(keyRefreshToken) }

func (m *Manager) HasTokens() bool {
	return m.AccessToken() != "" && m.RefreshToken() != ""
}

func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

// RequestCode starts sign-up by texting a one-time code to the given
// phone number.
func (m *Manager) RequestCode(ctx context.Context, phone string) error {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if !phoneRe.MatchString(digits) {
		return ErrInvalidPhone
	}

	body := map[string]string{"phoneNumber": digits}
	if m.cfg.MerchantID != "" {
		body["merchantId"] = m.cfg.MerchantID
	}
	if err := m.t.DoJSON(ctx, http.MethodPost, "/send-code", nil, body, "", nil); err != nil {
		return fmt.Errorf("request code: %w", err)
	}

	m.setPhase(PhaseCodeSent)
	return nil
}

// VerifyCode exchanges the one-time code for a provider token pair,
// resolves the loyalty card number and broadcasts the identity change.
func (m *Manager) VerifyCode(ctx context.Context, phone, pin string) (*models.Profile, error) {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if !phoneRe.MatchString(digits) {
		return nil, ErrInvalidPhone
	}
	if !pinRe.MatchString(pin) {
		return nil, ErrInvalidCode
	}

	body := map[string]string{
		"phoneNumber":    "+1" + digits,
		"pinCode":        pin,
		"IsoCountryCode": "US",
	}
	if m.cfg.MerchantID != "" {
		body["merchantId"] = m.cfg.MerchantID
	}

	var tokens models.TokenPair
	if err := m.t.DoJSON(ctx, http.MethodPost, "/verify-code", nil, body, "", &tokens); err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, fmt.Errorf("verify code: provider returned no token pair")
	}

	_ = m.kv.Set(keyAccessToken, tokens.AccessToken)
	_ = m.kv.Set(keyRefreshToken, tokens.RefreshToken)
	_ = m.kv.Set(keyLoyaltyNumber, digits)

	profile, err := m.resolveCustomer(ctx, tokens.AccessToken)
	if err != nil {
		// tokens are good even when card resolution fails; clips will
		// surface the missing card later
		log.Printf("[session] customer resolution failed: %v", err)
		profile = &models.Profile{}
	}
	if profile.CardNumber != "" {
		_ = m.kv.Set(keyCardNumber, profile.CardNumber)
	}
	if profile.FirstName != "" {
		_ = m.kv.Set(keyFirstName, profile.FirstName)
	}

	m.setPhase(PhaseVerified)
	m.bus.PublishIdentityChanged("sign-in")
	return profile, nil
}

// resolveCustomer fetches the customer record the tokens belong to.
func (m *Manager) resolveCustomer(ctx context.Context, accessToken string) (*models.Profile, error) {
	q := url.Values{}
	if store := m.StoreID(); store != "" {
		q.Set("location_id", store)
	}
	if m.cfg.AppID != "" {
		q.Set("app_id", m.cfg.AppID)
	}

	var records []models.Profile
	if err := m.t.GetJSON(ctx, "/check-user", q, accessToken, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &models.Profile{}, nil
	}
	return &records[0], nil
}

// UpdateProfile PUTs profile fields keyed by the refresh token.
func (m *Manager) UpdateProfile(ctx context.Context, profile models.Profile) error {
	refresh := m.RefreshToken()
	if refresh == "" {
		return ErrNotSignedIn
	}

	q := url.Values{}
	q.Set("refresh_token", refresh)
	if profile.CardNumber == "" {
		profile.CardNumber = m.CardNumber()
	}
	if err := m.t.DoJSON(ctx, http.MethodPut, "/customer", q, profile, m.AccessToken(), nil); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	m.setPhase(PhaseProfileComplete)
	return nil
}

// SignOut clears every auth-related field. The store id survives: it is a
// store preference, not identity. Dependent caches reset on the broadcast.
func (m *Manager) SignOut() {
	_ = m.kv.Delete(keyAccessToken, keyRefreshToken, keyCardNumber, keyLoyaltyNumber, keyFirstName)
	m.setPhase(PhaseAnonymous)
	m.bus.PublishIdentityChanged("sign-out")
}

// SetStore persists the selected store and broadcasts the change so the
// catalog and entitlement caches invalidate.
func (m *Manager) SetStore(storeID string) {
	_ = m.kv.Set(keyStoreID, storeID)
	m.bus.PublishIdentityChanged("store-change")
}

func (m *Manager) LoyaltyNumber() string { return m.kv.Get(keyLoyaltyNumber) }

func (m *Manager) FirstName() string { return m.kv.Get(keyFirstName) }
