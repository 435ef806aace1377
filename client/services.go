package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Envelope mirrors the backend's standard {success, message, data}
// response wrapper. Data stays raw because most admin screens consume it
// as loosely-typed rows.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// DataMap decodes the envelope payload as an object.
func (e Envelope) DataMap() (map[string]any, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode data object: %w", err)
	}
	return out, nil
}

// DataSlice decodes the envelope payload as a list of objects.
func (e Envelope) DataSlice() ([]map[string]any, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var out []map[string]any
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, fmt.Errorf("decode data list: %w", err)
	}
	return out, nil
}

// UserListParams filters the admin user listing.
type UserListParams struct {
	Page      int
	Limit     int
	Search    string
	Role      string
	IsBlocked *bool
}

func (p UserListParams) query() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if p.Role != "" {
		q.Set("role", p.Role)
	}
	if p.IsBlocked != nil {
		q.Set("isBlocked", strconv.FormatBool(*p.IsBlocked))
	}
	return q
}

// UsersService wraps the admin user-management endpoints.
type UsersService struct {
	c *Client
}

// Users returns the user-management service.
func (c *Client) Users() UsersService {
	return UsersService{c: c}
}

// List fetches users with pagination and filters.
func (s UsersService) List(ctx context.Context, params UserListParams) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/admin/users", params.query(), &out)
	return out, err
}

// Get fetches a single user by id.
func (s UsersService) Get(ctx context.Context, id string) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/admin/users/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Create registers a new user.
func (s UsersService) Create(ctx context.Context, body map[string]any) (Envelope, error) {
	var out Envelope
	err := s.c.post(ctx, "/admin/users", body, &out)
	return out, err
}

// Update modifies a user.
func (s UsersService) Update(ctx context.Context, id string, body map[string]any) (Envelope, error) {
	var out Envelope
	err := s.c.put(ctx, "/admin/users/"+url.PathEscape(id), body, &out)
	return out, err
}

// Block suspends a user account.
func (s UsersService) Block(ctx context.Context, id string) (Envelope, error) {
	var out Envelope
	err := s.c.patch(ctx, "/admin/users/"+url.PathEscape(id)+"/block", nil, &out)
	return out, err
}

// Unblock reinstates a suspended account.
func (s UsersService) Unblock(ctx context.Context, id string) (Envelope, error) {
	var out Envelope
	err := s.c.patch(ctx, "/admin/users/"+url.PathEscape(id)+"/unblock", nil, &out)
	return out, err
}

// UpdateProfile modifies the authenticated user's own profile.
func (s UsersService) UpdateProfile(ctx context.Context, body map[string]any) (Envelope, error) {
	var out Envelope
	err := s.c.put(ctx, profilePath, body, &out)
	return out, err
}

// PackagesService wraps the subscription-package endpoints.
type PackagesService struct {
	c *Client
}

// Packages returns the package-management service.
func (c *Client) Packages() PackagesService {
	return PackagesService{c: c}
}

// List fetches all subscription packages.
func (s PackagesService) List(ctx context.Context, query url.Values) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/package", query, &out)
	return out, err
}

// Create adds a new subscription package.
func (s PackagesService) Create(ctx context.Context, body map[string]any) (Envelope, error) {
	var out Envelope
	err := s.c.post(ctx, "/package", body, &out)
	return out, err
}

// CreateDefaults provisions the standard trial/basic/advanced packages.
func (s PackagesService) CreateDefaults(ctx context.Context) (Envelope, error) {
	var out Envelope
	err := s.c.post(ctx, "/package/create", nil, &out)
	return out, err
}

// Update modifies a package.
func (s PackagesService) Update(ctx context.Context, id string, body map[string]any) (Envelope, error) {
	var out Envelope
	err := s.c.put(ctx, "/package/"+url.PathEscape(id), body, &out)
	return out, err
}

// Delete removes a package.
func (s PackagesService) Delete(ctx context.Context, id string) (Envelope, error) {
	var out Envelope
	err := s.c.delete(ctx, "/package/"+url.PathEscape(id), &out)
	return out, err
}

// CancelUserPackage cancels the active subscription of a user.
func (s PackagesService) CancelUserPackage(ctx context.Context, userID string) (Envelope, error) {
	var out Envelope
	err := s.c.put(ctx, "/user-package/admin/cancel/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// ExtendUserPackage extends the active subscription of a user.
func (s PackagesService) ExtendUserPackage(ctx context.Context, userID string) (Envelope, error) {
	var out Envelope
	err := s.c.put(ctx, "/user-package/admin/extend/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// Stats fetches aggregate subscription statistics.
func (s PackagesService) Stats(ctx context.Context) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/user-package/admin/stats", nil, &out)
	return out, err
}

// UserDetails fetches a user's subscription details.
func (s PackagesService) UserDetails(ctx context.Context, userID string) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/user-package/admin/user/"+url.PathEscape(userID), nil, &out)
	return out, err
}

// PaymentsService wraps the payment and dashboard reporting endpoints.
type PaymentsService struct {
	c *Client
}

// Payments returns the payment-reporting service.
func (c *Client) Payments() PaymentsService {
	return PaymentsService{c: c}
}

// List fetches payments, optionally filtered by page/date parameters.
func (s PaymentsService) List(ctx context.Context, query url.Values) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/payos/admin/payments", query, &out)
	return out, err
}

// ByOrderCode fetches a single payment by its order code.
func (s PaymentsService) ByOrderCode(ctx context.Context, orderCode string) (Envelope, error) {
	if orderCode == "" {
		return Envelope{}, fmt.Errorf("order code is required")
	}
	var out Envelope
	err := s.c.get(ctx, "/payos/admin/payment/"+url.PathEscape(orderCode), nil, &out)
	return out, err
}

// DashboardStats fetches the admin dashboard aggregates.
func (s PaymentsService) DashboardStats(ctx context.Context) (Envelope, error) {
	var out Envelope
	err := s.c.get(ctx, "/payos/admin/dashboard-stats", nil, &out)
	return out, err
}
