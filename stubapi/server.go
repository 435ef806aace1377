package stubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"medadmin/config"
)

// Token lifetimes for stub-minted credentials. The short access TTL keeps
// the refresh protocol exercised during development.
const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

type claimsKey struct{}

// Server is the stub MedBuddy backend.
type Server struct {
	cfg    config.StubConfig
	store  *InMemoryStore
	signer *Signer
	logger *slog.Logger
}

// New builds a stub server seeded with an admin account (bcrypt-hashed
// password from config), the default packages, and a few payment rows.
func New(cfg config.StubConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	signer, err := NewSigner(cfg.Issuer)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		store:  NewInMemoryStore(),
		signer: signer,
		logger: logger,
	}
	if err := s.seed(); err != nil {
		return nil, err
	}
	return s, nil
}

// Store exposes the backing store so tests can arrange fixtures.
func (s *Server) Store() *InMemoryStore {
	return s.store
}

func (s *Server) seed() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &User{
		ID:           s.store.NewID(),
		Email:        s.cfg.AdminEmail,
		FullName:     "Stub Administrator",
		Role:         "admin",
		CreatedAt:    time.Now(),
		PasswordHash: hash,
	}
	s.store.SaveUser(admin)

	for i, name := range []string{"testing", "basic", "advanced"} {
		s.store.SavePackage(&Package{
			ID:           s.store.NewID(),
			Name:         name,
			Price:        float64(i) * 99000,
			DurationDays: 30 * (i + 1),
			Features:     []string{"blood-pressure", "medications"},
			IsActive:     true,
		})
	}

	s.store.AddPayment(Payment{
		OrderCode: "ORD-0001",
		UserID:    admin.ID,
		Amount:    99000,
		Status:    "PAID",
		CreatedAt: time.Now().Add(-24 * time.Hour),
	})
	return nil
}

// Routes constructs the HTTP router for the consumed API surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))

	r.Get("/jwks.json", s.handleJWKS)

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Post("/auth/refresh-token", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/users/profile", s.handleProfile)
		r.Put("/users/profile", s.handleUpdateProfile)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Get("/admin/users", s.handleListUsers)
			r.Post("/admin/users", s.handleCreateUser)
			r.Get("/admin/users/{id}", s.handleGetUser)
			r.Put("/admin/users/{id}", s.handleUpdateUser)
			r.Patch("/admin/users/{id}/block", s.handleBlockUser(true))
			r.Patch("/admin/users/{id}/unblock", s.handleBlockUser(false))

			r.Get("/package", s.handleListPackages)
			r.Post("/package", s.handleCreatePackage)
			r.Post("/package/create", s.handleCreateDefaultPackages)
			r.Put("/package/{id}", s.handleUpdatePackage)
			r.Delete("/package/{id}", s.handleDeletePackage)

			r.Put("/user-package/admin/cancel/{userId}", s.handleCancelSubscription)
			r.Put("/user-package/admin/extend/{userId}", s.handleExtendSubscription)
			r.Get("/user-package/admin/stats", s.handleSubscriptionStats)
			r.Get("/user-package/admin/user/{userId}", s.handleUserSubscription)

			r.Get("/payos/admin/payments", s.handleListPayments)
			r.Get("/payos/admin/payment/{orderCode}", s.handleGetPayment)
			r.Get("/payos/admin/dashboard-stats", s.handleDashboardStats)
		})
	})

	return r
}

// requireAuth validates the bearer token and stashes its claims.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeFail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.signer.Verify(token)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// requireAdmin gates the management endpoints on the role claim.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := s.claims(r)["role"].(string)
		if !strings.EqualFold(role, "admin") {
			writeFail(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) claims(r *http.Request) jwt.MapClaims {
	if v, ok := r.Context().Value(claimsKey{}).(jwt.MapClaims); ok {
		return v
	}
	return nil
}

func (s *Server) subject(r *http.Request) string {
	sub, _ := s.claims(r)["sub"].(string)
	return sub
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
