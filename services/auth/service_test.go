package auth

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docsquare/auth-gateway/config"
	"github.com/docsquare/auth-gateway/models"
	"github.com/docsquare/auth-gateway/repositories"
	"github.com/docsquare/auth-gateway/services"
	"github.com/docsquare/auth-gateway/services/password"
	"github.com/docsquare/auth-gateway/services/quota"
	"github.com/docsquare/auth-gateway/services/rbac"
	"github.com/docsquare/auth-gateway/services/token"
)

type fakeTxManager struct{}

func (m *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return nil, nil
}

func (m *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, nil)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeUserRepo) GetWithRoles(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeUserRepo) GetByEmailWithRoles(ctx context.Context, email string) (*models.User, error) {
	return r.GetByEmail(ctx, email)
}

func (r *fakeUserRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (r *fakeUserRepo) IncrementUsageTotals(ctx context.Context, id uuid.UUID, queries, uploads int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.TotalQueriesUsed += queries
		u.TotalUploads += uploads
	}
	return nil
}

func (r *fakeUserRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return nil, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return r
}

type fakeRoleRepo struct {
	mu          sync.Mutex
	roles       map[string]*models.Role
	assignments map[uuid.UUID][]uuid.UUID
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles:       make(map[string]*models.Role),
		assignments: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *fakeRoleRepo) Create(ctx context.Context, role *models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.Name] = role
	return nil
}

func (r *fakeRoleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.ID == id {
			return role, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeRoleRepo) GetByName(ctx context.Context, name string) (*models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[name]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return role, nil
}

func (r *fakeRoleRepo) List(ctx context.Context) ([]*models.Role, error) {
	return nil, nil
}

func (r *fakeRoleRepo) AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[userID] = append(r.assignments[userID], roleID)
	return nil
}

func (r *fakeRoleRepo) RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return nil
}

func (r *fakeRoleRepo) CreatePermission(ctx context.Context, perm *models.Permission) error {
	return nil
}

func (r *fakeRoleRepo) GetPermissionByName(ctx context.Context, resource, action string) (*models.Permission, error) {
	return nil, repositories.ErrNotFound
}

func (r *fakeRoleRepo) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return nil
}

func (r *fakeRoleRepo) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return nil
}

func (r *fakeRoleRepo) WithTx(tx repositories.Transaction) repositories.RoleRepository {
	return r
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{tokens: make(map[string]*models.RefreshToken)}
}

func (r *fakeRefreshTokenRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.TokenHash] = t
	return nil
}

func (r *fakeRefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return t, nil
}

func (r *fakeRefreshTokenRepo) Claim(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || !t.IsValidAt(now) {
		return nil, repositories.ErrNotFound
	}
	t.RevokedAt = &now
	return t, nil
}

func (r *fakeRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRefreshTokenRepo) WithTx(tx repositories.Transaction) repositories.RefreshTokenRepository {
	return r
}

func (r *fakeRefreshTokenRepo) activeCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
}

type fakeBlacklistRepo struct {
	mu     sync.Mutex
	hashes map[string]*models.BlacklistedToken
}

func newFakeBlacklistRepo() *fakeBlacklistRepo {
	return &fakeBlacklistRepo{hashes: make(map[string]*models.BlacklistedToken)}
}

func (r *fakeBlacklistRepo) Add(ctx context.Context, t *models.BlacklistedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hashes[t.TokenHash]; !ok {
		r.hashes[t.TokenHash] = t
	}
	return nil
}

func (r *fakeBlacklistRepo) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hashes[tokenHash]
	return ok, nil
}

func (r *fakeBlacklistRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeBlacklistRepo) WithTx(tx repositories.Transaction) repositories.TokenBlacklistRepository {
	return r
}

type fakeUsageRepo struct {
	mu       sync.Mutex
	counters map[string]float64
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{counters: make(map[string]float64)}
}

func (r *fakeUsageRepo) InsertLog(ctx context.Context, log *models.UsageLog) (bool, error) {
	return true, nil
}

func (r *fakeUsageRepo) IncrementCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[userID.String()+"|"+periodBucket+"|"+dimension] += amount
	return nil
}

func (r *fakeUsageRepo) GetCounter(ctx context.Context, userID uuid.UUID, periodBucket, dimension string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[userID.String()+"|"+periodBucket+"|"+dimension], nil
}

func (r *fakeUsageRepo) GetLogsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.UsageLog, error) {
	return nil, nil
}

func (r *fakeUsageRepo) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeUsageRepo) WithTx(tx repositories.Transaction) repositories.UsageRepository {
	return r
}

type fixture struct {
	svc           *Service
	users         *fakeUserRepo
	roles         *fakeRoleRepo
	refreshTokens *fakeRefreshTokenRepo
	blacklist     *fakeBlacklistRepo
	tokens        *token.Service
	hasher        *password.Hasher
	now           time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newFakeUserRepo()
	roles := newFakeRoleRepo()
	refreshTokens := newFakeRefreshTokenRepo()
	blacklist := newFakeBlacklistRepo()
	usage := newFakeUsageRepo()
	txMgr := &fakeTxManager{}

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tokens := token.NewService(config.JWTConfig{
		SecretKey:       "test-secret-key-for-auth-tests",
		Issuer:          "auth-gateway",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}).WithClock(clock)

	hasher := password.NewHasher(password.MinCost)
	rbacSvc := rbac.NewService()
	quotaSvc := quota.NewService(users, usage, txMgr, rbacSvc, zap.NewNop()).WithClock(clock)

	repos := &repositories.Repositories{
		Users:          users,
		Roles:          roles,
		RefreshTokens:  refreshTokens,
		TokenBlacklist: blacklist,
		Usage:          usage,
	}

	svc := NewService(repos, txMgr, tokens, hasher, rbacSvc, quotaSvc, zap.NewNop()).WithClock(clock)

	return &fixture{
		svc:           svc,
		users:         users,
		roles:         roles,
		refreshTokens: refreshTokens,
		blacklist:     blacklist,
		tokens:        tokens,
		hasher:        hasher,
		now:           now,
	}
}

func (f *fixture) seedGuestRole(t *testing.T) *models.Role {
	t.Helper()
	guest := models.NewRole(models.RoleGuest, "default signup role")
	guest.DefaultDailyQueryLimit = models.IntPtr(10)
	require.NoError(t, f.roles.Create(context.Background(), guest))
	return guest
}

func (f *fixture) seedActiveUser(t *testing.T, email, plain string) *models.User {
	t.Helper()
	hash, err := f.hasher.Hash(plain)
	require.NoError(t, err)

	user := models.NewUser(email, hash)
	orgID := uuid.New()
	user.OrgID = &orgID
	user.Roles = []*models.Role{models.NewRole(models.RoleMember, "")}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func TestRegister(t *testing.T) {
	t.Run("creates user with guest role", func(t *testing.T) {
		f := newFixture(t)
		guest := f.seedGuestRole(t)

		user, err := f.svc.Register(context.Background(), RegisterRequest{
			Email:    "new@example.com",
			Password: "correct horse battery",
		})
		require.NoError(t, err)

		assert.Equal(t, "new@example.com", user.Email)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "correct horse battery", user.PasswordHash)
		assert.True(t, f.hasher.Verify("correct horse battery", user.PasswordHash))
		assert.Contains(t, f.roles.assignments[user.ID], guest.ID)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		f := newFixture(t)
		f.seedGuestRole(t)
		f.seedActiveUser(t, "taken@example.com", "whatever1234")

		_, err := f.svc.Register(context.Background(), RegisterRequest{
			Email:    "taken@example.com",
			Password: "another password",
		})
		assert.ErrorIs(t, err, services.ErrDuplicateEmail)
	})

	t.Run("survives missing guest role", func(t *testing.T) {
		f := newFixture(t)

		user, err := f.svc.Register(context.Background(), RegisterRequest{
			Email:    "orphan@example.com",
			Password: "correct horse battery",
		})
		require.NoError(t, err)
		assert.Empty(t, user.Roles)
	})
}

func TestLogin(t *testing.T) {
	t.Run("issues token pair for valid credentials", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, loggedIn, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		assert.Equal(t, "bearer", pair.TokenType)
		assert.Equal(t, int((30 * time.Minute).Seconds()), pair.ExpiresIn)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, user.ID, loggedIn.ID)
		require.NotNil(t, loggedIn.LastLoginAt)
		assert.Equal(t, f.now, *loggedIn.LastLoginAt)

		claims, err := f.tokens.ParseAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.Email, claims.Email)

		assert.Equal(t, 1, f.refreshTokens.activeCount(user.ID))
	})

	t.Run("same error for unknown email and wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.seedActiveUser(t, "member@example.com", "correct horse battery")

		_, _, errUnknown := f.svc.Login(context.Background(), "nobody@example.com", "correct horse battery", nil)
		_, _, errWrong := f.svc.Login(context.Background(), "member@example.com", "wrong password here", nil)

		assert.ErrorIs(t, errUnknown, services.ErrInvalidCredentials)
		assert.ErrorIs(t, errWrong, services.ErrInvalidCredentials)
	})

	t.Run("rejects inactive account", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "gone@example.com", "correct horse battery")
		user.IsActive = false

		_, _, err := f.svc.Login(context.Background(), "gone@example.com", "correct horse battery", nil)
		assert.ErrorIs(t, err, services.ErrAccountInactive)
	})

	t.Run("rejects account without organization", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "floating@example.com", "correct horse battery")
		user.OrgID = nil

		_, _, err := f.svc.Login(context.Background(), "floating@example.com", "correct horse battery", nil)
		assert.ErrorIs(t, err, services.ErrNoOrganization)
	})

	t.Run("rejects account without roles", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "roleless@example.com", "correct horse battery")
		user.Roles = nil

		_, _, err := f.svc.Login(context.Background(), "roleless@example.com", "correct horse battery", nil)
		assert.ErrorIs(t, err, services.ErrNoRoleAssigned)
	})
}

func TestVerify(t *testing.T) {
	t.Run("returns live snapshot for valid token", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")
		user.Roles[0].Permissions = []*models.Permission{
			models.NewPermission("documents", "read", ""),
		}

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		result, err := f.svc.Verify(context.Background(), pair.AccessToken)
		require.NoError(t, err)

		assert.True(t, result.Valid)
		assert.Equal(t, user.ID, result.UserID)
		assert.Equal(t, user.Email, result.Email)
		assert.Contains(t, result.Roles, models.RoleMember)
		assert.Contains(t, result.Permissions, "documents:read")
		require.NotNil(t, result.Usage)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Verify(context.Background(), "not-a-jwt")
		assert.True(t, services.IsUnauthorizedError(err))
	})

	t.Run("rejects blacklisted token", func(t *testing.T) {
		f := newFixture(t)
		f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken))

		_, err = f.svc.Verify(context.Background(), pair.AccessToken)
		assert.ErrorIs(t, err, services.ErrTokenRevoked)
	})

	t.Run("rejects token for deactivated account", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		user.IsActive = false

		_, err = f.svc.Verify(context.Background(), pair.AccessToken)
		assert.ErrorIs(t, err, services.ErrAccountInactive)
	})

	t.Run("reflects permission changes after issuance", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		user.Roles[0].Permissions = []*models.Permission{
			models.NewPermission("admin", "write", ""),
		}

		result, err := f.svc.Verify(context.Background(), pair.AccessToken)
		require.NoError(t, err)
		assert.Contains(t, result.Permissions, "admin:write")
	})
}

func TestRefresh(t *testing.T) {
	t.Run("rotates the pair", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		rotated, err := f.svc.Refresh(context.Background(), pair.RefreshToken, json.RawMessage(`{"device":"cli"}`))
		require.NoError(t, err)

		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
		assert.Equal(t, 1, f.refreshTokens.activeCount(user.ID))
	})

	t.Run("a refresh token rotates at most once", func(t *testing.T) {
		f := newFixture(t)
		f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, nil)
		require.NoError(t, err)

		_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, nil)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Refresh(context.Background(), "completely-unknown", nil)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("rejects deactivated account", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		user.IsActive = false

		_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, nil)
		assert.ErrorIs(t, err, services.ErrAccountInactive)
	})
}

func TestLogout(t *testing.T) {
	t.Run("blacklists access token and revokes refresh token", func(t *testing.T) {
		f := newFixture(t)
		user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken))

		blacklisted, err := f.blacklist.IsBlacklisted(context.Background(), token.HashToken(pair.AccessToken))
		require.NoError(t, err)
		assert.True(t, blacklisted)
		assert.Equal(t, 0, f.refreshTokens.activeCount(user.ID))

		_, err = f.svc.Refresh(context.Background(), pair.RefreshToken, nil)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("is idempotent", func(t *testing.T) {
		f := newFixture(t)
		f.seedActiveUser(t, "member@example.com", "correct horse battery")

		pair, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
		require.NoError(t, err)

		require.NoError(t, f.svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken))
		require.NoError(t, f.svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken))
	})

	t.Run("rejects invalid access token", func(t *testing.T) {
		f := newFixture(t)

		err := f.svc.Logout(context.Background(), "not-a-jwt", "")
		assert.True(t, services.IsUnauthorizedError(err))
	})
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	user := f.seedActiveUser(t, "member@example.com", "correct horse battery")

	first, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
	require.NoError(t, err)
	second, _, err := f.svc.Login(context.Background(), "member@example.com", "correct horse battery", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.LogoutAll(context.Background(), first.AccessToken))

	assert.Equal(t, 0, f.refreshTokens.activeCount(user.ID))

	_, err = f.svc.Refresh(context.Background(), second.RefreshToken, nil)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}
