package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

type accountsEnv struct {
	svc   *AccountService
	store *config.Store
	clock *testClock
	sink  *recordingSink
	audit *Emitter
}

func newAccountsEnv(t *testing.T) *accountsEnv {
	t.Helper()
	store := newTestStore(t)
	clock := newTestClock()
	sink := &recordingSink{}
	audit := NewEmitter(discardLogger(), 64, sink)
	t.Cleanup(func() { audit.Close(context.Background()) })

	settings := config.DefaultSettings()
	settings.Auth = testAuthSettings()

	return &accountsEnv{
		svc:   NewAccountService(store, settings, audit, discardLogger(), clock.Now),
		store: store,
		clock: clock,
		sink:  sink,
		audit: audit,
	}
}

// flushAudit waits for queued audit entries and returns them.
func (e *accountsEnv) flushAudit(t *testing.T) []model.AuditEntry {
	t.Helper()
	if err := e.audit.Close(context.Background()); err != nil {
		t.Fatalf("audit Close: %v", err)
	}
	return e.sink.Entries()
}

func (e *accountsEnv) bootstrap(t *testing.T) *model.Admin {
	t.Helper()
	root, err := e.svc.Bootstrap(context.Background(), BootstrapInput{Name: "Root", Email: "root@x.com", Password: "secret1"}, Origin{})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return root
}

func (e *accountsEnv) createAdmin(t *testing.T, actor *model.Admin, email string) *model.Admin {
	t.Helper()
	a, err := e.svc.CreateAdmin(context.Background(), principalOf(actor), CreateAdminInput{
		Name: "Admin", Email: email, Password: "secret1", Role: model.RoleAdmin,
	}, Origin{})
	if err != nil {
		t.Fatalf("CreateAdmin(%s): %v", email, err)
	}
	return a
}

func (e *accountsEnv) login(email, password string) (*Session, error) {
	return e.svc.Login(context.Background(), LoginInput{Email: email, Password: password}, Origin{IP: "10.0.0.1", UserAgent: "test"})
}

func (e *accountsEnv) attempts(t *testing.T, email string) []model.LoginAttempt {
	t.Helper()
	got, err := e.store.RecentLoginAttempts(context.Background(), email, time.Time{}, 1000)
	if err != nil {
		t.Fatalf("RecentLoginAttempts: %v", err)
	}
	return got
}

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

func TestBootstrapOnce(t *testing.T) {
	env := newAccountsEnv(t)
	ctx := context.Background()

	root, err := env.svc.Bootstrap(ctx, BootstrapInput{Name: "Root", Email: "root@x.com", Password: "secret1"}, Origin{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if root.Role != model.RoleSuperAdmin || !root.IsActive {
		t.Errorf("bootstrap admin = %+v, want active SUPERADMIN", root)
	}

	_, err = env.svc.Bootstrap(ctx, BootstrapInput{Name: "Other", Email: "other@x.com", Password: "secret2"}, Origin{})
	if !errors.Is(err, ErrBootstrapClosed) {
		t.Fatalf("second Bootstrap: expected ErrBootstrapClosed, got %v", err)
	}
	if KindOf(err) != KindForbidden {
		t.Errorf("kind = %v, want forbidden", KindOf(err))
	}

	entries := env.flushAudit(t)
	if len(entries) != 1 || entries[0].Action != model.AuditAdminBootstrap {
		t.Errorf("audit = %+v, want one ADMIN_BOOTSTRAP", entries)
	}
}

func TestBootstrapValidation(t *testing.T) {
	env := newAccountsEnv(t)

	_, err := env.svc.Bootstrap(context.Background(), BootstrapInput{Name: "", Email: "not-an-email", Password: "123"}, Origin{})
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation (err=%v)", KindOf(err), err)
	}
	var verr *Error
	errors.As(err, &verr)
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected field error for %q, got %v", field, verr.Fields)
		}
	}

	count, _ := env.store.CountAdmins(context.Background())
	if count != 0 {
		t.Errorf("invalid bootstrap created %d accounts", count)
	}
}

func TestBootstrapConcurrent(t *testing.T) {
	env := newAccountsEnv(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@x.com"
			_, errs[i] = env.svc.Bootstrap(context.Background(), BootstrapInput{Name: "R", Email: email, Password: "secret1"}, Origin{})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrBootstrapClosed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d bootstraps succeeded, want 1", ok)
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLoginSuccess(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)

	sess, err := env.login("ROOT@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Admin.ID != root.ID {
		t.Errorf("session admin = %q, want %q", sess.Admin.ID, root.ID)
	}
	if sess.Admin.LastLoginAt == nil || !sess.Admin.LastLoginAt.Equal(env.clock.Now()) {
		t.Errorf("last login = %v, want %v", sess.Admin.LastLoginAt, env.clock.Now())
	}

	p, err := env.svc.Tokens().Verify(sess.Tokens.AccessToken, AccessToken)
	if err != nil {
		t.Fatalf("Verify access token: %v", err)
	}
	if p.SubjectID != root.ID || p.Role != model.RoleSuperAdmin {
		t.Errorf("principal = %+v", p)
	}

	attempts := env.attempts(t, "root@x.com")
	if len(attempts) != 1 || !attempts[0].Success || attempts[0].IP != "10.0.0.1" {
		t.Errorf("attempts = %+v, want one successful attempt from 10.0.0.1", attempts)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	a1 := env.createAdmin(t, root, "a1@x.com")
	disabled := false
	if _, err := env.svc.UpdateAdmin(context.Background(), principalOf(root), a1.ID, UpdateAdminInput{IsActive: &disabled}, Origin{}); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
		wantKind Kind
	}{
		{"unknown email", "nobody@x.com", "secret1", ErrInvalidCredentials, KindUnauthorized},
		{"wrong password", "root@x.com", "wrong-password", ErrInvalidCredentials, KindUnauthorized},
		{"disabled account", "a1@x.com", "secret1", ErrAccountDisabled, KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.login(tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v", KindOf(err), tt.wantKind)
			}
			attempts := env.attempts(t, tt.email)
			if len(attempts) != 1 || attempts[0].Success {
				t.Errorf("attempts = %+v, want one failed attempt", attempts)
			}
		})
	}
}

func TestLoginValidation(t *testing.T) {
	env := newAccountsEnv(t)

	_, err := env.login("", "")
	if KindOf(err) != KindValidation {
		t.Errorf("kind = %v, want validation", KindOf(err))
	}
}

// Five failed attempts in the last ten minutes lock the email even for the
// correct password.
func TestLoginLockout(t *testing.T) {
	env := newAccountsEnv(t)
	env.bootstrap(t)

	for i := 0; i < 5; i++ {
		if _, err := env.login("root@x.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
		env.clock.Advance(2 * time.Minute)
	}

	_, err := env.login("root@x.com", "secret1")
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if KindOf(err) != KindTooManyAttempts {
		t.Errorf("kind = %v, want too_many_attempts", KindOf(err))
	}
	if n := len(env.attempts(t, "root@x.com")); n != 5 {
		t.Errorf("locked login recorded an attempt: %d rows, want 5", n)
	}

	// First failure was at t0; the clock is at t0+10m. At t0+15m+1s it has
	// left the window and only four failures remain.
	env.clock.Advance(5*time.Minute + time.Second)
	if _, err := env.login("root@x.com", "secret1"); err != nil {
		t.Fatalf("login after the window moved: %v", err)
	}
}

func TestLoginConcurrentFailuresRespectCeiling(t *testing.T) {
	env := newAccountsEnv(t)
	env.bootstrap(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.login("root@x.com", "wrong-password")
		}()
	}
	wg.Wait()

	if n := len(env.attempts(t, "root@x.com")); n != 5 {
		t.Errorf("recorded %d attempts, want exactly 5 before lockout engaged", n)
	}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	a1 := env.createAdmin(t, root, "a1@x.com")
	ctx := context.Background()

	sess, err := env.login("a1@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	env.clock.Advance(time.Hour)
	rotated, err := env.svc.Refresh(ctx, sess.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.Admin.ID != a1.ID {
		t.Errorf("refresh admin = %q, want %q", rotated.Admin.ID, a1.ID)
	}
	if want := env.clock.Now().Add(15 * time.Minute); !rotated.Tokens.AccessExpiresAt.Equal(want) {
		t.Errorf("access expiry = %v, want %v", rotated.Tokens.AccessExpiresAt, want)
	}

	if _, err := env.svc.Refresh(ctx, ""); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("empty token: expected ErrMissingCredential, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, sess.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("access token: expected ErrTokenInvalid, got %v", err)
	}

	// Promotion changes the role the token was issued for.
	super := model.RoleSuperAdmin
	if _, err := env.svc.UpdateAdmin(ctx, principalOf(root), a1.ID, UpdateAdminInput{Role: &super}, Origin{}); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, sess.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("stale role: expected ErrTokenInvalid, got %v", err)
	}

	if err := env.svc.DeleteAdmin(ctx, principalOf(root), a1.ID, Origin{}); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, rotated.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("deleted subject: expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	env := newAccountsEnv(t)
	env.bootstrap(t)
	sess, _ := env.login("root@x.com", "secret1")

	env.clock.Advance(8 * 24 * time.Hour)
	if _, err := env.svc.Refresh(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshInactive(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	env.createAdmin(t, root, "a1@x.com")
	sess, _ := env.login("a1@x.com", "secret1")

	off := false
	if _, err := env.svc.UpdateAdmin(context.Background(), principalOf(root), sess.Admin.ID, UpdateAdminInput{IsActive: &off}, Origin{}); err != nil {
		t.Fatalf("UpdateAdmin: %v", err)
	}
	if _, err := env.svc.Refresh(context.Background(), sess.Tokens.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Passwords
// ---------------------------------------------------------------------------

func TestChangePassword(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	ctx := context.Background()
	p := principalOf(root)

	err := env.svc.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: "nope", NewPassword: "secret2"}, Origin{})
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}

	err = env.svc.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "12"}, Origin{})
	if KindOf(err) != KindValidation {
		t.Fatalf("short password: kind = %v, want validation", KindOf(err))
	}

	if err := env.svc.ChangePassword(ctx, p, ChangePasswordInput{CurrentPassword: "secret1", NewPassword: "secret2"}, Origin{}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := env.login("root@x.com", "secret2"); err != nil {
		t.Errorf("login with new password: %v", err)
	}

	entries := env.flushAudit(t)
	last := entries[len(entries)-1]
	if last.Action != model.AuditPasswordChange || last.TargetID != root.ID {
		t.Errorf("last audit entry = %+v, want PASSWORD_CHANGE for root", last)
	}
}

func TestResetPassword(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	a1 := env.createAdmin(t, root, "a1@x.com")
	ctx := context.Background()

	err := env.svc.ResetPassword(ctx, principalOf(a1), root.ID, ResetPasswordInput{Password: "hijack1"}, Origin{})
	if !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("ADMIN reset: expected ErrInsufficientRole, got %v", err)
	}

	if err := env.svc.ResetPassword(ctx, principalOf(root), a1.ID, ResetPasswordInput{Password: "fresh-pass"}, Origin{}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := env.login("a1@x.com", "fresh-pass"); err != nil {
		t.Errorf("login with reset password: %v", err)
	}

	if err := env.svc.ResetPassword(ctx, principalOf(root), "missing", ResetPasswordInput{Password: "fresh-pass"}, Origin{}); !errors.Is(err, ErrAdminNotFound) {
		t.Errorf("expected ErrAdminNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Admin accounts
// ---------------------------------------------------------------------------

func TestAdminManagementRequiresSuperadmin(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	a1 := env.createAdmin(t, root, "a1@x.com")
	ctx := context.Background()
	admin := principalOf(a1)

	if _, err := env.svc.ListAdmins(ctx, admin); !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("ListAdmins: expected ErrInsufficientRole, got %v", err)
	}
	if _, err := env.svc.CreateAdmin(ctx, admin, CreateAdminInput{Name: "x", Email: "x@x.com", Password: "secret1", Role: model.RoleAdmin}, Origin{}); !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("CreateAdmin: expected ErrInsufficientRole, got %v", err)
	}
	if err := env.svc.DeleteAdmin(ctx, admin, root.ID, Origin{}); !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("DeleteAdmin: expected ErrInsufficientRole, got %v", err)
	}
	if _, err := env.svc.ListAdmins(ctx, nil); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("nil principal: expected ErrMissingCredential, got %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	ctx := context.Background()
	p := principalOf(root)

	inactive := false
	a, err := env.svc.CreateAdmin(ctx, p, CreateAdminInput{Name: "A", Email: "a@x.com", Password: "secret1", Role: model.RoleAdmin, IsActive: &inactive}, Origin{})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if a.IsActive {
		t.Error("expected is_active=false to be honoured")
	}

	tests := []struct {
		name     string
		in       CreateAdminInput
		wantErr  error
		wantKind Kind
	}{
		{"superadmin", CreateAdminInput{Name: "S", Email: "s@x.com", Password: "secret1", Role: model.RoleSuperAdmin}, ErrSuperadminCreateForbidden, KindForbidden},
		{"duplicate", CreateAdminInput{Name: "A", Email: "A@x.com", Password: "secret1", Role: model.RoleAdmin}, ErrEmailTaken, KindConflict},
		{"bad role", CreateAdminInput{Name: "A", Email: "b@x.com", Password: "secret1", Role: "OWNER"}, nil, KindValidation},
		{"long password", CreateAdminInput{Name: "A", Email: "b@x.com", Password: string(make([]byte, 73)), Role: model.RoleAdmin}, nil, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateAdmin(ctx, p, tt.in, Origin{})
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v (err=%v)", KindOf(err), tt.wantKind, err)
			}
		})
	}

	// An omitted role defaults to ADMIN.
	d, err := env.svc.CreateAdmin(ctx, p, CreateAdminInput{Name: "D", Email: "d@x.com", Password: "secret1"}, Origin{})
	if err != nil {
		t.Fatalf("CreateAdmin without role: %v", err)
	}
	if d.Role != model.RoleAdmin {
		t.Errorf("role = %s, want ADMIN", d.Role)
	}

	list, err := env.svc.ListAdmins(ctx, p)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("got %d admins, want 3", len(list))
	}
}

func TestUpdateAdminValidation(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)
	a1 := env.createAdmin(t, root, "a1@x.com")

	empty := ""
	bad := model.Role("OWNER")
	_, err := env.svc.UpdateAdmin(context.Background(), principalOf(root), a1.ID, UpdateAdminInput{Name: &empty, Role: &bad}, Origin{})
	var verr *Error
	if !errors.As(err, &verr) || verr.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["name"]; !ok {
		t.Errorf("expected name field error, got %v", verr.Fields)
	}
	if _, ok := verr.Fields["role"]; !ok {
		t.Errorf("expected role field error, got %v", verr.Fields)
	}
}

// The only SUPERADMIN cannot demote themselves, regardless of route.
func TestSelfDemotionThroughService(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)

	demoted := model.RoleAdmin
	_, err := env.svc.UpdateAdmin(context.Background(), principalOf(root), root.ID, UpdateAdminInput{Role: &demoted}, Origin{})
	if !errors.Is(err, ErrSelfDemotionForbidden) {
		t.Errorf("expected ErrSelfDemotionForbidden, got %v", err)
	}
}

func TestMe(t *testing.T) {
	env := newAccountsEnv(t)
	root := env.bootstrap(t)

	me, err := env.svc.Me(context.Background(), principalOf(root))
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Email != "root@x.com" {
		t.Errorf("email = %q", me.Email)
	}
	if _, err := env.svc.Me(context.Background(), &Principal{SubjectID: "gone", Role: model.RoleAdmin}); !errors.Is(err, ErrAdminNotFound) {
		t.Errorf("expected ErrAdminNotFound, got %v", err)
	}
}
