package stubapi

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed login request")
		return
	}

	user, ok := s.store.GetUserByEmail(req.Email)
	if !ok || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		writeFail(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if user.IsBlocked {
		writeFail(w, http.StatusForbidden, "account is blocked")
		return
	}

	access, err := s.signer.Mint(user.ID, user.Email, user.Role, accessTokenTTL)
	if err != nil {
		s.logger.Error("mint access token", "error", err)
		writeFail(w, http.StatusInternalServerError, "token minting failed")
		return
	}
	refresh := s.store.IssueRefresh(user.ID, refreshTokenTTL)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"accessToken":  access,
		"refreshToken": refresh,
		"user":         user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Best-effort by contract: revoke refresh tokens when the caller still
	// holds a valid access token, succeed regardless.
	if token := extractBearerToken(r.Header.Get("Authorization")); token != "" {
		if claims, err := s.signer.Verify(token); err == nil {
			if sub, _ := claims["sub"].(string); sub != "" {
				s.store.RevokeRefreshFor(sub)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		writeFail(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	userID, ok := s.store.ConsumeRefresh(req.RefreshToken)
	if !ok {
		writeFail(w, http.StatusUnauthorized, "refresh token invalid or already used")
		return
	}
	user, ok := s.store.GetUser(userID)
	if !ok || user.IsBlocked {
		writeFail(w, http.StatusUnauthorized, "account unavailable")
		return
	}

	access, err := s.signer.Mint(user.ID, user.Email, user.Role, accessTokenTTL)
	if err != nil {
		s.logger.Error("mint access token", "error", err)
		writeFail(w, http.StatusInternalServerError, "token minting failed")
		return
	}
	rotated := s.store.IssueRefresh(user.ID, refreshTokenTTL)

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  access,
		"refreshToken": rotated,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.GetUser(s.subject(r))
	if !ok {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}
	writeOK(w, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.GetUser(s.subject(r))
	if !ok {
		writeFail(w, http.StatusNotFound, "user not found")
		return
	}
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeFail(w, http.StatusBadRequest, "malformed profile update")
		return
	}
	if name, ok := body["fullName"].(string); ok && name != "" {
		user.FullName = name
	}
	s.store.SaveUser(user)
	writeOK(w, user)
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.signer.PublicJWKS())
}

// expireRefreshNow is a test hook: it shortens an issued refresh token's
// validity to the past.
func (s *Server) expireRefreshNow(token string) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if rec, ok := s.store.refreshTokens[token]; ok {
		rec.expiresAt = time.Now().Add(-time.Minute)
		s.store.refreshTokens[token] = rec
	}
}
