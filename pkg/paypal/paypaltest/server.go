package paypaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maxfitai/billing/pkg/paypal"
)

// Server is an in-memory stand-in for the PayPal REST API.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	seq           int
	products      map[string]map[string]any
	plans         map[string]map[string]any
	subscriptions map[string]*paypal.Subscription
	failNext      int
}

// NewServer starts a fake API and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		products:      map[string]map[string]any{},
		plans:         map[string]map[string]any{},
		subscriptions: map[string]*paypal.Subscription{},
	}

	r := chi.NewRouter()
	r.Post("/v1/oauth2/token", s.token)
	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/v1/catalogs/products", s.createProduct)
		r.Post("/v1/billing/plans", s.createPlan)
		r.Post("/v1/billing/subscriptions", s.createSubscription)
		r.Get("/v1/billing/subscriptions/{id}", s.getSubscription)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Config returns client config pointing at this server.
func (s *Server) Config() paypal.Config {
	return paypal.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      s.URL,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
	}
}

// SetStatus changes a subscription's status. It returns false if unknown.
func (s *Server) SetStatus(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[id]
	if ok {
		sub.Status = status
	}
	return ok
}

// AddSubscription stores a subscription as if created elsewhere.
func (s *Server) AddSubscription(sub paypal.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = &sub
}

// FailNext makes the next n API calls answer 503.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Counts returns how many products and plans were created.
func (s *Server) Counts() (products, plans int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products), len(s.plans)
}

// Plan returns the stored request body of a created plan.
func (s *Server) Plan(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plans[id]
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "client" || pass != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "A21AA-test",
		"token_type":   "Bearer",
		"expires_in":   32400,
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer A21AA-test" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"name": "AUTHENTICATION_FAILURE"})
			return
		}
		s.mu.Lock()
		fail := s.failNext > 0
		if fail {
			s.failNext--
		}
		s.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"name": "SERVICE_UNAVAILABLE"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "INVALID_REQUEST"})
		return
	}
	s.mu.Lock()
	id := s.nextID("PROD")
	body["id"] = id
	s.products[id] = body
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "INVALID_REQUEST"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[fmt.Sprint(body["product_id"])]; !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"name": "UNPROCESSABLE_ENTITY", "message": "unknown product"})
		return
	}
	id := s.nextID("P")
	body["id"] = id
	s.plans[id] = body
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlanID   string `json:"plan_id"`
		CustomID string `json:"custom_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "INVALID_REQUEST"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[body.PlanID]; !ok && !strings.HasPrefix(body.PlanID, "P-") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"name": "UNPROCESSABLE_ENTITY", "message": "unknown plan"})
		return
	}
	sub := &paypal.Subscription{
		ID:       s.nextID("I"),
		Status:   "APPROVAL_PENDING",
		PlanID:   body.PlanID,
		CustomID: body.CustomID,
	}
	sub.Links = []paypal.Link{
		{Href: "https://www.sandbox.paypal.com/webapps/billing/subscriptions?ba_token=BA-" + sub.ID, Rel: "approve", Method: "GET"},
		{Href: s.URL + "/v1/billing/subscriptions/" + sub.ID, Rel: "self", Method: "GET"},
	}
	s.subscriptions[sub.ID] = sub
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sub, ok := s.subscriptions[chi.URLParam(r, "id")]
	var out paypal.Subscription
	if ok {
		out = *sub
		if out.Status == "ACTIVE" && out.Subscriber.PayerID == "" {
			out.Subscriber.PayerID = "PAYER-" + out.ID
		}
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "RESOURCE_NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
