package stubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users := s.store.ListUsers()

	filtered := users[:0:0]
	search := strings.ToLower(q.Get("search"))
	role := q.Get("role")
	blocked := q.Get("isBlocked")
	for _, u := range users {
		if search != "" && !strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		if role != "" && !strings.EqualFold(u.Role, role) {
			continue
		}
		if blocked != "" && strconv.FormatBool(u.IsBlocked) != blocked {
			continue
		}
		filtered = append(filtered, u)
	}

	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 20)
	start := (page - 1) * limit
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    filtered[start:end],
		"page":    page,
		"limit":   limit,
		"total":   len(filtered),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		FullName string `json:"fullName"`
		Role     string `json:"role"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil || body.Email == "" {
		writeFail(w, http.StatusBadRequest, "email is required")
		return
	}
	if _, exists := s.store.GetUserByEmail(body.Email); exists {
		writeFail(w, http.StatusConflict, "email already registered")
		return
	}
	if body.Role == "" {
		body.Role = "user"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "password hashing failed")
		return
	}
	user := &User{
		ID:           s.store.NewID(),
		Email:        body.Email,
		FullName:     body.FullName,
		Role:         body.Role,
		CreatedAt:    time.Now(),
		PasswordHash: hash,
	}
	s.store.SaveUser(user)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": user})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.GetUser(chi.URLParam(r, "id"))
	if !ok {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}
	writeOK(w, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.GetUser(chi.URLParam(r, "id"))
	if !ok {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed user update")
		return
	}
	if v, ok := body["fullName"].(string); ok && v != "" {
		user.FullName = v
	}
	if v, ok := body["role"].(string); ok && v != "" {
		user.Role = v
	}
	s.store.SaveUser(user)
	writeOK(w, user)
}

// handleBlockUser flips the blocked flag; blocking also revokes every
// refresh token so the account cannot silently re-authenticate.
func (s *Server) handleBlockUser(block bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.store.GetUser(chi.URLParam(r, "id"))
		if !ok {
			writeFail(w, http.StatusNotFound, "user not found")
			return
		}
		user.IsBlocked = block
		s.store.SaveUser(user)
		if block {
			s.store.RevokeRefreshFor(user.ID)
		}
		writeOK(w, user)
	}
}

func (s *Server) handleListPackages(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.store.ListPackages())
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string   `json:"name"`
		Price        float64  `json:"price"`
		DurationDays int      `json:"durationDays"`
		Features     []string `json:"features"`
	}
	if err := decodeBody(r, &body); err != nil || body.Name == "" {
		writeFail(w, http.StatusBadRequest, "package name is required")
		return
	}
	pkg := &Package{
		ID:           s.store.NewID(),
		Name:         body.Name,
		Price:        body.Price,
		DurationDays: body.DurationDays,
		Features:     body.Features,
		IsActive:     true,
	}
	s.store.SavePackage(pkg)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": pkg})
}

func (s *Server) handleCreateDefaultPackages(w http.ResponseWriter, _ *http.Request) {
	for i, name := range []string{"testing", "basic", "advanced"} {
		s.store.SavePackage(&Package{
			ID:           s.store.NewID(),
			Name:         name,
			Price:        float64(i) * 99000,
			DurationDays: 30 * (i + 1),
			IsActive:     true,
		})
	}
	writeOK(w, s.store.ListPackages())
}

func (s *Server) handleUpdatePackage(w http.ResponseWriter, r *http.Request) {
	pkg, ok := s.store.GetPackage(chi.URLParam(r, "id"))
	if !ok {
		writeFail(w, http.StatusNotFound, "package not found")
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed package update")
		return
	}
	if v, ok := body["name"].(string); ok && v != "" {
		pkg.Name = v
	}
	if v, ok := body["price"].(float64); ok {
		pkg.Price = v
	}
	if v, ok := body["durationDays"].(float64); ok {
		pkg.DurationDays = int(v)
	}
	if v, ok := body["isActive"].(bool); ok {
		pkg.IsActive = v
	}
	s.store.SavePackage(pkg)
	writeOK(w, pkg)
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeletePackage(chi.URLParam(r, "id")) {
		writeFail(w, http.StatusNotFound, "package not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sub, ok := s.store.GetSubscription(userID)
	if !ok {
		writeFail(w, http.StatusNotFound, "no subscription for user")
		return
	}
	sub.Status = "cancelled"
	s.store.SaveSubscription(sub)
	writeOK(w, sub)
}

func (s *Server) handleExtendSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	sub, ok := s.store.GetSubscription(userID)
	if !ok {
		// Extending a user without a subscription grants the first
		// package, matching the production backend's upsert behaviour.
		pkgs := s.store.ListPackages()
		if len(pkgs) == 0 {
			writeFail(w, http.StatusNotFound, "no packages configured")
			return
		}
		sub = &Subscription{UserID: userID, PackageID: pkgs[0].ID, Status: "active", ExpiresAt: time.Now()}
	}
	sub.Status = "active"
	sub.ExpiresAt = sub.ExpiresAt.Add(30 * 24 * time.Hour)
	s.store.SaveSubscription(sub)
	writeOK(w, sub)
}

func (s *Server) handleSubscriptionStats(w http.ResponseWriter, _ *http.Request) {
	subs := s.store.ListSubscriptions()
	active, cancelled := 0, 0
	for _, sub := range subs {
		if sub.Status == "active" {
			active++
		} else {
			cancelled++
		}
	}
	writeOK(w, map[string]any{
		"totalSubscriptions": len(subs),
		"active":             active,
		"cancelled":          cancelled,
		"totalPackages":      len(s.store.ListPackages()),
		"totalUsers":         len(s.store.ListUsers()),
	})
}

func (s *Server) handleUserSubscription(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	user, ok := s.store.GetUser(userID)
	if !ok {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}
	sub, _ := s.store.GetSubscription(userID)
	writeOK(w, map[string]any{"user": user, "subscription": sub})
}

func (s *Server) handleListPayments(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.store.ListPayments())
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	payment, ok := s.store.GetPaymentByOrderCode(chi.URLParam(r, "orderCode"))
	if !ok {
		writeFail(w, http.StatusNotFound, "payment not found")
		return
	}
	writeOK(w, payment)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, _ *http.Request) {
	payments := s.store.ListPayments()
	var revenue float64
	for _, p := range payments {
		if p.Status == "PAID" {
			revenue += p.Amount
		}
	}
	writeOK(w, map[string]any{
		"totalRevenue":  revenue,
		"totalPayments": len(payments),
		"totalUsers":    len(s.store.ListUsers()),
	})
}

func atoiDefault(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
