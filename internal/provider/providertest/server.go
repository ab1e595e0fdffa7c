// Package providertest fakes the remote coupon provider for tests: an
// httptest.Server covering both integration modes' routes, with mutable
// offer state so clip and sweep flows can be exercised end to end.
package providertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

type Offer struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Clipped      bool   `json:"clipped,omitempty"`
}

type Category struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type Server struct {
	mu sync.Mutex

	srv *httptest.Server

	Categories []Category
	Offers     []Offer

	// Gone offers make /offer-by-id return an empty list.
	Gone map[string]bool
	// FailClip makes every clip attempt return 409.
	FailClip bool
	// FailByID makes /offer-by-id answer 500 (transport-level failure).
	FailByID bool
	// ValidPIN accepted by /verify-code. Defaults to "1234".
	ValidPIN string

	// ClipCalls counts mutation attempts; queries records the last query
	// string seen per path for assertions.
	ClipCalls int
	queries   map[string]url.Values
}

func NewServer() *Server {
	s := &Server{
		Gone:     make(map[string]bool),
		ValidPIN: "1234",
		queries:  make(map[string]url.Values),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/categories", s.handleCategories)
	mux.HandleFunc("/offers", s.handleOffers)
	mux.HandleFunc("/search-offers", s.handleSearch)
	mux.HandleFunc("/offer-by-id", s.handleOfferByID)
	mux.HandleFunc("/get-offer-by-id", s.handleOfferByID)
	mux.HandleFunc("/card-offers", s.handleCardOffers)
	mux.HandleFunc("/offer/", s.handleLocationClip)
	mux.HandleFunc("/clip-coupon", s.handleMerchantClip)
	mux.HandleFunc("/send-code", s.handleSendCode)
	mux.HandleFunc("/verify-code", s.handleVerifyCode)
	mux.HandleFunc("/check-user", s.handleCheckUser)
	mux.HandleFunc("/customer", s.handleCustomer)
	s.srv = httptest.NewServer(mux)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// LastQuery returns the query values of the most recent request to path.
func (s *Server) LastQuery(path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[path]
}

func (s *Server) record(r *http.Request) {
	s.queries[r.URL.Path] = r.URL.Query()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	cats := s.Categories
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	q := r.URL.Query()
	withToken := q.Get("refresh_token") != ""
	categoryID := q.Get("category_id")
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	matched := make([]Offer, 0)
	for _, o := range s.Offers {
		if categoryID != "" && o.CategoryID != categoryID {
			continue
		}
		if !withToken {
			// without a token the provider never reveals clip state
			o.Clipped = false
		}
		matched = append(matched, o)
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": matched})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	term := strings.ToLower(r.URL.Query().Get("subtitle"))
	matched := make([]Offer, 0)
	for _, o := range s.Offers {
		if strings.Contains(strings.ToLower(o.Title), term) ||
			strings.Contains(strings.ToLower(o.Subtitle), term) {
			matched = append(matched, o)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": matched})
}

func (s *Server) handleOfferByID(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	if s.FailByID {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "upstream down"})
		return
	}

	id := r.URL.Query().Get("offer_id")
	if s.Gone[id] {
		writeJSON(w, http.StatusOK, []Offer{})
		return
	}
	for _, o := range s.Offers {
		if o.ID == id {
			writeJSON(w, http.StatusOK, []Offer{o})
			return
		}
	}
	writeJSON(w, http.StatusOK, []Offer{})
}

func (s *Server) handleCardOffers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	clipped := make([]Offer, 0)
	for _, o := range s.Offers {
		if o.Clipped {
			clipped = append(clipped, o)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": clipped})
}

func (s *Server) clip(w http.ResponseWriter, id string) {
	s.ClipCalls++
	if s.FailClip || s.Gone[id] {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "offer unavailable"})
		return
	}
	for i := range s.Offers {
		if s.Offers[i].ID == id {
			s.Offers[i].Clipped = true
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "offer_id": id})
			return
		}
	}
	writeJSON(w, http.StatusConflict, map[string]string{"error": "unknown offer"})
}

func (s *Server) handleLocationClip(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		OfferID  string `json:"offer_id"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.clip(w, body.OfferID)
}

func (s *Server) handleMerchantClip(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("refresh_token") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.clip(w, r.URL.Query().Get("offer_id"))
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "code sent"})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	var body struct {
		PinCode string `json:"pinCode"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.PinCode != s.ValidPIN {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid code"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  "at-test-token",
		"refresh_token": "rt-test-token",
	})
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	s.mu.Unlock()

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, []map[string]string{{
		"cardNumber": "CARD-777",
		"FirstName":  "Pat",
		"Email":      "pat@example.com",
	}})
}

func (s *Server) handleCustomer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	s.mu.Unlock()

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
