// Package server wires the authorization server: credential store,
// session manager, claims signer, permissions client, and the HTTP
// routes. Configuration is built once at process start and passed in;
// there is no ambient global.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"golang.org/x/crypto/bcrypt"

	"github.com/brighthive/authserver/pkg/claims"
	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/encryption"
	"github.com/brighthive/authserver/pkg/handlerutils"
	"github.com/brighthive/authserver/pkg/oauth/authorize"
	"github.com/brighthive/authserver/pkg/oauth/revoke"
	"github.com/brighthive/authserver/pkg/oauth/token"
	"github.com/brighthive/authserver/pkg/oauth/validate"
	"github.com/brighthive/authserver/pkg/permissions"
	"github.com/brighthive/authserver/pkg/session"
	"github.com/brighthive/authserver/pkg/types"
)

// Server holds the wired components of the authorization server.
type Server struct {
	db       *db.Store
	sessions *session.Manager
	signer   *claims.Signer
	enricher token.Enricher
	config   *types.Config
}

// New creates a fully wired Server from the given configuration.
func New(config *types.Config) (*Server, error) {
	if config.DatabaseDSN == "" {
		log.Println("DATABASE_DSN not set, using SQLite database at data/authserver.db")
	} else if strings.HasPrefix(config.DatabaseDSN, "postgres://") || strings.HasPrefix(config.DatabaseDSN, "postgresql://") {
		log.Println("Using PostgreSQL database")
	} else {
		log.Printf("Using SQLite database at: %s", config.DatabaseDSN)
	}

	if config.Port == "" {
		config.Port = "8080"
	}
	if config.LoginURL == "" {
		config.LoginURL = "/login"
	}

	sessionKey, err := loadKey(config.SessionKey, "session")
	if err != nil {
		return nil, err
	}
	signingKey, err := loadKey(config.SigningKey, "signing")
	if err != nil {
		return nil, err
	}

	store, err := db.New(config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	signer := claims.NewSigner(signingKey)

	var enricher token.Enricher
	if config.PermissionsURL != "" {
		enricher = token.NewClaimsEnricher(permissions.New(config.PermissionsURL, signer), signer)
	} else {
		log.Println("PERMISSIONS_URL not set, token responses will not carry the jwt claim")
	}

	return &Server{
		db:       store,
		sessions: session.NewManager(sessionKey),
		signer:   signer,
		enricher: enricher,
		config:   config,
	}, nil
}

// loadKey decodes a base64 key or generates an ephemeral one. An
// ephemeral key invalidates sessions and claims across restarts.
func loadKey(encoded, name string) ([]byte, error) {
	if encoded == "" {
		log.Printf("No %s key configured, generating an ephemeral one", name)
		return []byte(encryption.GenerateRandomString(32)), nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s key: %w", name, err)
	}
	return key, nil
}

// Start launches the background sweep that removes expired
// authorization codes and dead token pairs. It returns immediately;
// the sweep stops when ctx is done.
func (s *Server) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.db.CleanupExpired(); err != nil {
					log.Printf("Failed to cleanup expired credentials: %v", err)
				}
			}
		}
	}()
}

// Store exposes the credential store, mainly for tests and seeding.
func (s *Server) Store() *db.Store {
	return s.db
}

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// SetupRoutes registers the OAuth endpoints and the session endpoints
// on the given mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	authorizeHandler := authorize.NewHandler(s.db, s.sessions, s.config.LoginURL)
	tokenHandler := token.NewHandler(s.db, s.enricher)
	revokeHandler := revoke.NewHandler(s.db)
	validateHandler := validate.NewHandler(s.db)

	mux.HandleFunc("GET /health", s.withCORS(s.healthHandler))

	mux.HandleFunc("GET /oauth/authorize", s.withCORS(authorizeHandler.ServeHTTP))
	mux.HandleFunc("POST /oauth/authorize", s.withCORS(authorizeHandler.ServeHTTP))
	mux.HandleFunc("POST /oauth/token", s.withCORS(tokenHandler.ServeHTTP))
	mux.HandleFunc("POST /oauth/revoke", s.withCORS(revokeHandler.ServeHTTP))
	mux.HandleFunc("POST /oauth/validate", s.withCORS(validateHandler.ServeHTTP))

	mux.HandleFunc("POST /login", s.withCORS(s.loginHandler))
	mux.HandleFunc("POST /logout", s.withCORS(s.logoutHandler))
}

// GetHandler returns the server's http.Handler with access logging.
func (s *Server) GetHandler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return handlers.LoggingHandler(os.Stdout, mux)
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loginHandler stands in for the external login UI: it verifies the
// resource owner's password and establishes the session the
// authorization endpoint consumes.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid request body",
		})
		return
	}

	user, err := s.db.GetUserByUsername(body.Username)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		log.Printf("Failed login attempt for %q from %s", body.Username, handlerutils.GetClientIP(r))
		handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
			Error:            "access_denied",
			ErrorDescription: "Invalid username or password",
		})
		return
	}

	if err := s.sessions.SetUser(w, r, user.ID); err != nil {
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to establish session",
		})
		return
	}

	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w, r)
	handlerutils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Close closes the credential store.
func (s *Server) Close() error {
	return s.db.Close()
}
