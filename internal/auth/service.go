package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"panelmerge/internal/audit"
	"panelmerge/pkg/platform/sentinel"
	"panelmerge/pkg/requestcontext"
)

// Service authenticates users and issues session tokens. Both login
// successes and failures are audited here, so the trail is complete even
// when the HTTP layer changes.
type Service struct {
	users      UserStore
	auditor    *audit.Service
	logger     *slog.Logger
	signingKey []byte
	sessionTTL time.Duration
	now        func() time.Time
}

// Option customizes the auth service.
type Option func(*Service)

// WithClock overrides the time source. Test use only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs the auth service.
func NewService(users UserStore, auditor *audit.Service, logger *slog.Logger, signingKey string, sessionTTL time.Duration, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit service is required")
	}
	if signingKey == "" {
		return nil, errors.New("signing key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		users:      users,
		auditor:    auditor,
		logger:     logger,
		signingKey: []byte(signingKey),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Session is an issued login session.
type Session struct {
	Token     string
	SessionID string
	User      *User
	ExpiresAt time.Time
}

// Login verifies credentials and issues a signed session token. Unknown
// users and wrong passwords both return ErrInvalidCredentials; a bcrypt
// comparison runs in either case to keep timing uniform.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Burn a comparison so unknown users cost the same as bad
			// passwords.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			s.auditor.LogLoginFailed(ctx, username, "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.auditor.LogLoginFailed(ctx, username, "invalid password")
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)

	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"name": user.DisplayName,
		"role": string(user.Role),
		"sid":  sessionID,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s.auditor.LogLogin(requestcontext.WithSessionID(ctx, sessionID), user.ID, user.Username)

	return &Session{
		Token:     token,
		SessionID: sessionID,
		User:      user,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout records the end of the current session. Tokens are stateless, so
// this is an audit concern only.
func (s *Service) Logout(ctx context.Context, userID int64, username string) {
	s.auditor.LogLogout(ctx, userID, username)
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID    int64
	Name      string
	Role      Role
	SessionID string
}

// Verify parses and validates a session token. Expired tokens return
// sentinel.ErrExpired so the HTTP layer can distinguish them.
func (s *Service) Verify(ctx context.Context, token string) (*Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			if sid := sessionIDFromUnverified(token); sid != "" {
				s.auditor.LogSessionExpired(ctx, sid)
			}
			return nil, sentinel.ErrExpired
		}
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid session token")
	}

	sub, _ := mapClaims["sub"].(string)
	var userID int64
	if _, err := fmt.Sscanf(sub, "%d", &userID); err != nil {
		return nil, errors.New("invalid subject claim")
	}

	name, _ := mapClaims["name"].(string)
	role, _ := mapClaims["role"].(string)
	sid, _ := mapClaims["sid"].(string)

	return &Claims{
		UserID:    userID,
		Name:      name,
		Role:      Role(role),
		SessionID: sid,
	}, nil
}

// sessionIDFromUnverified pulls the sid claim from an expired token for the
// session-expired audit event. The signature was already checked as part of
// the failed parse; this is attribution only.
func sessionIDFromUnverified(token string) string {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	sid, _ := claims["sid"].(string)
	return sid
}

// dummyHash is a bcrypt hash of an unguessable value, used to equalize
// timing for unknown-user logins.
var dummyHash = func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}()
