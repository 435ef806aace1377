package stubapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is a stub account record.
type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Role         string    `json:"role"`
	IsBlocked    bool      `json:"isBlocked"`
	CreatedAt    time.Time `json:"createdAt"`
	PasswordHash []byte    `json:"-"`
}

// Package is a stub subscription package.
type Package struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	DurationDays int      `json:"durationDays"`
	Features     []string `json:"features"`
	IsActive     bool     `json:"isActive"`
}

// Subscription links a user to their active package.
type Subscription struct {
	UserID    string    `json:"userId"`
	PackageID string    `json:"packageId"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Payment is a stub payment record.
type Payment struct {
	OrderCode string    `json:"orderCode"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// refreshRecord tracks an issued refresh token. Tokens are single-use:
// the exchange consumes the record and issues a replacement, mirroring
// the production backend's rotation behaviour.
type refreshRecord struct {
	token     string
	userID    string
	expiresAt time.Time
}

// InMemoryStore keeps the stub backend's ephemeral state.
type InMemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	refreshTokens map[string]refreshRecord
	packages      map[string]*Package
	subscriptions map[string]*Subscription
	payments      []Payment
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[string]*User),
		refreshTokens: make(map[string]refreshRecord),
		packages:      make(map[string]*Package),
		subscriptions: make(map[string]*Subscription),
	}
}

// NewID generates a random identifier.
func (s *InMemoryStore) NewID() string {
	return uuid.NewString()
}

// SaveUser stores or replaces a user.
func (s *InMemoryStore) SaveUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// GetUser returns a user by id.
func (s *InMemoryStore) GetUser(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// GetUserByEmail returns a user by email, case-insensitively.
func (s *InMemoryStore) GetUserByEmail(email string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return nil, false
}

// ListUsers returns all users ordered by creation time.
func (s *InMemoryStore) ListUsers() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// IssueRefresh records a new refresh token for the user.
func (s *InMemoryStore) IssueRefresh(userID string, ttl time.Duration) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[token] = refreshRecord{
		token:     token,
		userID:    userID,
		expiresAt: time.Now().Add(ttl),
	}
	return token
}

// ConsumeRefresh validates and invalidates a refresh token in one step.
// A second exchange with the same token fails.
func (s *InMemoryStore) ConsumeRefresh(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refreshTokens[token]
	if !ok {
		return "", false
	}
	delete(s.refreshTokens, token)
	if time.Now().After(rec.expiresAt) {
		return "", false
	}
	return rec.userID, true
}

// RevokeRefreshFor drops every refresh token issued to the user.
func (s *InMemoryStore) RevokeRefreshFor(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, rec := range s.refreshTokens {
		if rec.userID == userID {
			delete(s.refreshTokens, token)
		}
	}
}

// SavePackage stores or replaces a package.
func (s *InMemoryStore) SavePackage(p *Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[p.ID] = p
}

// GetPackage returns a package by id.
func (s *InMemoryStore) GetPackage(id string) (*Package, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packages[id]
	return p, ok
}

// DeletePackage removes a package, reporting whether it existed.
func (s *InMemoryStore) DeletePackage(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packages[id]; !ok {
		return false
	}
	delete(s.packages, id)
	return true
}

// ListPackages returns all packages ordered by name.
func (s *InMemoryStore) ListPackages() []*Package {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Package, 0, len(s.packages))
	for _, p := range s.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SaveSubscription stores or replaces a user's subscription.
func (s *InMemoryStore) SaveSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.UserID] = sub
}

// GetSubscription returns the user's subscription.
func (s *InMemoryStore) GetSubscription(userID string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[userID]
	return sub, ok
}

// ListSubscriptions returns all subscriptions.
func (s *InMemoryStore) ListSubscriptions() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	return out
}

// AddPayment appends a payment record.
func (s *InMemoryStore) AddPayment(p Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
}

// ListPayments returns all payments, newest first.
func (s *InMemoryStore) ListPayments() []Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Payment, len(s.payments))
	copy(out, s.payments)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetPaymentByOrderCode returns a payment by its order code.
func (s *InMemoryStore) GetPaymentByOrderCode(code string) (Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.OrderCode == code {
			return p, true
		}
	}
	return Payment{}, false
}
