package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/zenazn/goji/web"
)

// generateJWT returns a signed session token for the user.
func (s *Server) generateJWT(user string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": user,
		"exp":  time.Now().Add(time.Duration(s.config.tokenHours()) * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

func bearerToken(r *http.Request) (string, error) {
	reqToken := r.Header.Get("Authorization")
	if len(reqToken) == 0 {
		return "", fmt.Errorf("JWT required via Authorization in request header")
	}
	splitToken := strings.Split(reqToken, "Bearer")
	if len(splitToken) != 2 {
		return "", fmt.Errorf("bearer not in proper format")
	}
	tok := strings.TrimSpace(splitToken[1])
	if len(tok) == 0 {
		return "", fmt.Errorf("requests require JWT authentication")
	}
	return tok, nil
}

// isAuthorized is middleware that validates a JWT and sets the c.Env["user"] field
// to the authenticated user.  Version and session creation requests pass through.
func (s *Server) isAuthorized(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/version" || (r.URL.Path == "/api/session" && r.Method == http.MethodPost) {
			h.ServeHTTP(w, r)
			return
		}
		reqToken, err := bearerToken(r)
		if err != nil {
			unauthorized(w, r, "%v", err)
			return
		}
		if s.isRevoked(reqToken) {
			unauthorized(w, r, "session has been closed")
			return
		}
		token, err := jwt.Parse(reqToken, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return []byte(s.config.SecretKey), nil
		})
		if err != nil {
			unauthorized(w, r, "error parsing JWT: %v", err)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(w, r, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			unauthorized(w, r, "user %v is not a simple string", claims["user"])
			return
		}
		if _, found := s.config.Users[user]; !found {
			unauthorized(w, r, "user %q is not authorized", user)
			return
		}
		c.Env["user"] = user
		c.Env["token"] = reqToken
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (s *Server) isRevoked(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := s.revoked[token]
	return found
}

func (s *Server) createSessionHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req omerokv.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "can't decode session request: %v", err)
		return
	}
	password, found := s.config.Users[req.User]
	if !found || password != req.Password {
		unauthorized(w, r, "bad user or password for %q", req.User)
		return
	}
	token, err := s.generateJWT(req.User)
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	omerokv.Infof("session opened for user %q\n", req.User)
	writeJSON(w, r, omerokv.SessionResponse{Token: token})
}

func (s *Server) closeSessionHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	token, _ := c.Env["token"].(string)
	s.mu.Lock()
	s.revoked[token] = struct{}{}
	s.mu.Unlock()
	omerokv.Infof("session closed for user %q\n", c.Env["user"])
	w.WriteHeader(http.StatusOK)
}
