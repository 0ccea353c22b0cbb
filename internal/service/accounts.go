package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

// Session is the result of a successful login or refresh.
type Session struct {
	Admin  *model.Admin `json:"admin"`
	Tokens *TokenPair   `json:"-"`
}

// AccountService implements the back office account operations on top of
// the store, the token service, the login ledger and the lifecycle guard.
type AccountService struct {
	store     *config.Store
	hasher    *Hasher
	tokens    *TokenService
	ledger    *Ledger
	lifecycle *Lifecycle
	audit     *Emitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewAccountService wires the identity core from settings. audit may be nil;
// now may be nil, in which case time.Now is used.
func NewAccountService(store *config.Store, settings config.Settings, audit *Emitter, logger *slog.Logger, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{
		store:     store,
		hasher:    NewHasher(settings.Auth.BcryptCost),
		tokens:    NewTokenService(settings.Auth, now),
		ledger:    NewLedger(store, settings.Lockout, now),
		lifecycle: NewLifecycle(store, audit),
		audit:     audit,
		logger:    logger,
		now:       now,
	}
}

// Tokens returns the token service used to sign sessions.
func (s *AccountService) Tokens() *TokenService { return s.tokens }

// Ledger returns the login attempt ledger.
func (s *AccountService) Ledger() *Ledger { return s.ledger }

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Bootstrap creates the first account as SUPERADMIN. It succeeds only while
// no account exists; afterwards it fails with ErrBootstrapClosed.
func (s *AccountService) Bootstrap(ctx context.Context, in BootstrapInput, origin Origin) (*model.Admin, error) {
	count, err := s.store.CountAdmins(ctx)
	if err != nil {
		return nil, internalError("count admins", err)
	}
	if count > 0 {
		return nil, ErrBootstrapClosed
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("hash password", err)
	}
	admin := &model.Admin{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         model.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := s.store.CreateFirstAdmin(ctx, admin); err != nil {
		if errors.Is(err, config.ErrBootstrapClosed) {
			return nil, ErrBootstrapClosed
		}
		return nil, internalError("create first admin", err)
	}

	s.logger.Info("bootstrap admin created", "admin_id", admin.ID, "email", admin.Email)
	s.audit.Record(model.AuditEntry{
		ActorID:   admin.ID,
		TargetID:  admin.ID,
		Action:    model.AuditAdminBootstrap,
		Message:   "bootstrap registration of " + admin.Email,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return admin, nil
}

// Login verifies credentials and issues a session. The lockout check runs
// before the password is looked at; a locked email records nothing. Every
// other outcome records exactly one attempt.
func (s *AccountService) Login(ctx context.Context, in LoginInput, origin Origin) (*Session, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	email := config.NormalizeEmail(in.Email)

	unlock := s.ledger.Lock(email)
	defer unlock()

	locked, err := s.ledger.IsLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		s.logger.Warn("login locked out", "email", email, "ip", origin.IP)
		return nil, ErrTooManyAttempts
	}

	admin, failure := s.checkCredentials(ctx, email, in.Password)
	if err := s.ledger.RecordAttempt(ctx, email, failure == nil, origin); err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}

	pair, err := s.tokens.Issue(admin.ID, admin.Role)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.store.UpdateAdminLastLogin(ctx, admin.ID, now); err != nil {
		return nil, internalError("update last login", err)
	}
	admin.LastLoginAt = &now
	return &Session{Admin: admin, Tokens: pair}, nil
}

func (s *AccountService) checkCredentials(ctx context.Context, email, password string) (*model.Admin, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			s.hasher.burn(password)
			return nil, ErrInvalidCredentials
		}
		return nil, internalError("look up admin", err)
	}
	if err := s.hasher.Verify(admin.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, internalError("verify password", err)
	}
	if !admin.IsActive {
		return nil, ErrAccountDisabled
	}
	return admin, nil
}

// Refresh rotates a refresh token into a new session. The subject must still
// exist, be active and hold the role the token was issued for.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}
	p, pair, err := s.tokens.Rotate(refreshToken)
	if err != nil {
		return nil, err
	}

	admin, err := s.store.GetAdmin(ctx, p.SubjectID)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, internalError("look up admin", err)
	}
	if !admin.IsActive {
		return nil, ErrAccountDisabled
	}
	if admin.Role != p.Role {
		return nil, ErrTokenInvalid
	}
	return &Session{Admin: admin, Tokens: pair}, nil
}

// Me returns the account behind p.
func (s *AccountService) Me(ctx context.Context, p *Principal) (*model.Admin, error) {
	if p == nil {
		return nil, ErrMissingCredential
	}
	return s.getAdmin(ctx, p.SubjectID)
}

// ChangePassword replaces the principal's own password after checking the
// current one.
func (s *AccountService) ChangePassword(ctx context.Context, p *Principal, in ChangePasswordInput, origin Origin) error {
	if err := RequireRole(p, RoleSetAdmins); err != nil {
		return err
	}
	if err := validate(in); err != nil {
		return err
	}
	admin, err := s.getAdmin(ctx, p.SubjectID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(admin.PasswordHash, in.CurrentPassword); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return ErrPasswordMismatch
		}
		return internalError("verify password", err)
	}
	if err := s.setPassword(ctx, admin.ID, in.NewPassword); err != nil {
		return err
	}

	s.audit.Record(model.AuditEntry{
		ActorID:   p.SubjectID,
		TargetID:  admin.ID,
		Action:    model.AuditPasswordChange,
		Message:   "password changed by owner",
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return nil
}

// ResetPassword sets another account's password without the old-password
// check. SUPERADMIN only.
func (s *AccountService) ResetPassword(ctx context.Context, actor *Principal, targetID string, in ResetPasswordInput, origin Origin) error {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return err
	}
	if err := validate(in); err != nil {
		return err
	}
	target, err := s.getAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, target.ID, in.Password); err != nil {
		return err
	}

	s.audit.Record(model.AuditEntry{
		ActorID:   actor.SubjectID,
		TargetID:  target.ID,
		Action:    model.AuditPasswordReset,
		Message:   "password reset for " + target.Email,
		IP:        origin.IP,
		UserAgent: origin.UserAgent,
	})
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, id, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return internalError("hash password", err)
	}
	if err := s.store.UpdateAdminPassword(ctx, id, hash); err != nil {
		return translateStoreError("update password", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Admin accounts (SUPERADMIN only)
// ---------------------------------------------------------------------------

// ListAdmins returns every admin account.
func (s *AccountService) ListAdmins(ctx context.Context, actor *Principal) ([]model.Admin, error) {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return nil, err
	}
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, internalError("list admins", err)
	}
	return admins, nil
}

// GetAdmin returns one admin account.
func (s *AccountService) GetAdmin(ctx context.Context, actor *Principal, id string) (*model.Admin, error) {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return nil, err
	}
	return s.getAdmin(ctx, id)
}

// CreateAdmin creates a non-SUPERADMIN account.
func (s *AccountService) CreateAdmin(ctx context.Context, actor *Principal, in CreateAdminInput, origin Origin) (*model.Admin, error) {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if in.Role == model.RoleSuperAdmin {
		return nil, ErrSuperadminCreateForbidden
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("hash password", err)
	}
	admin := &model.Admin{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         in.Role,
		IsActive:     in.IsActive == nil || *in.IsActive,
	}
	if err := s.lifecycle.Create(ctx, actor, admin, origin); err != nil {
		return nil, err
	}
	return admin, nil
}

// UpdateAdmin applies a partial update through the lifecycle guard.
func (s *AccountService) UpdateAdmin(ctx context.Context, actor *Principal, id string, in UpdateAdminInput, origin Origin) (*model.Admin, error) {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	return s.lifecycle.Update(ctx, actor, id, in.changes(), origin)
}

// DeleteAdmin removes an account through the lifecycle guard.
func (s *AccountService) DeleteAdmin(ctx context.Context, actor *Principal, id string, origin Origin) error {
	if err := RequireRole(actor, RoleSetSuper); err != nil {
		return err
	}
	return s.lifecycle.Delete(ctx, actor, id, origin)
}

func (s *AccountService) getAdmin(ctx context.Context, id string) (*model.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return nil, translateStoreError("get admin", err)
	}
	return admin, nil
}
