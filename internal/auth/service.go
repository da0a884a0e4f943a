package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"worksdesk.io/internal/config"
)

// LoginResult is returned on successful login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        UserSummary `json:"user"`
}

// Service wires the credential validator, token issuer and identity resolver.
type Service struct {
	credentials *CredentialValidator
	tokens      *TokenIssuer
	resolver    *IdentityResolver
	rbac        *RBACService
	log         *zap.Logger
}

type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	log         *zap.Logger
	tokenOpts   []TokenOption
	lookupLimit time.Duration
}

func WithLogger(log *zap.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock sets the time source for token issue and verification.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		o.tokenOpts = append(o.tokenOpts, WithTokenClock(now))
	}
}

// WithIdentityTimeout bounds each identity lookup.
func WithIdentityTimeout(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.lookupLimit = d
	}
}

func NewService(store Store, tokens config.TokenConfig, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	o := serviceOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	issuer, err := NewTokenIssuer(tokens, o.tokenOpts...)
	if err != nil {
		return nil, err
	}
	rbac, err := NewRBACService(store)
	if err != nil {
		return nil, err
	}
	return &Service{
		credentials: NewCredentialValidator(store, o.log),
		tokens:      issuer,
		resolver:    NewIdentityResolver(store, o.lookupLimit, o.log),
		rbac:        rbac,
		log:         o.log,
	}, nil
}

func (s *Service) RBAC() *RBACService { return s.rbac }

func (s *Service) TokenTTL() time.Duration { return s.tokens.TTL() }

// Login validates credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.credentials.Validate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	id, err := s.resolver.ResolveSubject(ctx, user.ID)
	if err != nil {
		s.log.Warn("login identity resolution failed", zap.String("user_id", user.ID), zap.Error(err))
		return LoginResult{}, ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(id.User, id.RoleName(), id.OrganizationID())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: expires, User: id.Summary()}, nil
}

// Register creates a user. Unlike login, a used email is reported as ErrConflict.
func (s *Service) Register(ctx context.Context, in CreateUserInput) (UserView, error) {
	return s.rbac.CreateUser(ctx, in)
}

// Authenticate verifies the token and resolves the live identity behind it.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return s.resolver.Resolve(ctx, claims)
}
