package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	refreshtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func newTestKeys(t *testing.T) *auth.Keys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey error: %v", err)
	}
	return &auth.Keys{Private: key, Public: &key.PublicKey}
}

// fastHasher keeps argon2 cheap so tests stay quick.
func fastHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	return password.NewArgon2(password.Config{
		MemoryKB:    1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func newUserService(t *testing.T, db *sql.DB, rm repomanager.RepositoryManager, keys *auth.Keys) *UserService {
	t.Helper()
	cfg := &config.Config{
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewUserService(db, rm, keys, fastHasher(t), cfg, logger)
}

type fakeUsersRepo struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	upErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: make(map[string]*models.User)}
}

func (f *fakeUsersRepo) add(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	f.byID[u.ID] = u
	return u
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	for _, existing := range f.byID {
		if existing.Username == u.Username {
			f.mu.Unlock()
			return nil, common.ErrUsernameTaken
		}
		if existing.Email == u.Email {
			f.mu.Unlock()
			return nil, common.ErrEmailTaken
		}
	}
	f.mu.Unlock()
	return f.add(u), nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// fakeTokensRepo is an in-memory ledger. Deactivate reads and flips the
// active flag under one lock, mirroring the single-statement UPDATE of the
// real repository.
type fakeTokensRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.RefreshToken
	seq       int
	createErr error
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{rows: make(map[string]*models.RefreshToken)}
}

func (f *fakeTokensRepo) Create(ctx context.Context, userID string, expiresAt time.Time, previousTokenID *string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	row := &models.RefreshToken{
		ID:              uuid.NewString(),
		UserID:          userID,
		IsActive:        true,
		CreatedAt:       time.Unix(int64(f.seq), 0),
		ExpiresAt:       expiresAt,
		PreviousTokenID: previousTokenID,
	}
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeTokensRepo) Get(ctx context.Context, id string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeTokensRepo) Deactivate(ctx context.Context, id string) (*models.RefreshToken, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, false, common.ErrorNotFound
	}
	wasActive := row.IsActive
	row.IsActive = false
	copied := *row
	return &copied, wasActive, nil
}

func (f *fakeTokensRepo) ListActive(ctx context.Context, userID string, limit int) ([]*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RefreshToken
	for _, row := range f.rows {
		if row.UserID == userID && row.IsActive {
			copied := *row
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTokensRepo) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.IsActive {
			n++
		}
	}
	return n
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeTokensRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), r: newFakeTokensRepo()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

// seedUser registers a user directly in the fakes with a real hash.
func seedUser(t *testing.T, s *UserService, rm *fakeRepoManager, username, email, plain string) *models.User {
	t.Helper()
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	return rm.u.add(&models.User{Username: username, Email: email, PasswordHash: hash, IsActive: true})
}

// --- registration ---

func TestRegister_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)

	user, pair, err := s.Register(context.Background(), "alice", "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == "" || user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// Refresh token's subject is the user id and its ledger row exists.
	claims, err := auth.ParseToken(pair.RefreshToken, keys)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("refresh subject %q, want user id %q", claims.Subject, user.ID)
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		t.Fatalf("unexpected token type %q", claims.TokenType)
	}
	if _, err := rm.r.Get(context.Background(), claims.TokenID); err != nil {
		t.Fatalf("ledger row missing: %v", err)
	}

	// Access token resolves back to the same user.
	got, err := s.GetCurrentUser(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("GetCurrentUser error: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("GetCurrentUser returned %q, want %q", got.ID, user.ID)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	_, _, err := s.Register(context.Background(), "alice", "other@example.com", "another password")
	if !errors.Is(err, common.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	_, _, err := s.Register(context.Background(), "bob", "alice@example.com", "another password")
	if !errors.Is(err, common.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegister_ValidationFailsBeforeAnyWork(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newUserService(t, db, newFakeRepoManager(), newTestKeys(t))

	var vErr *common.ValidationError
	_, _, err := s.Register(context.Background(), "alice", "alice@example.com", "short")
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "password" {
		t.Fatalf("unexpected field: %q", vErr.Field)
	}
}

// --- login ---

func TestLogin_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	user := seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	claims, err := auth.ParseToken(pair.AccessToken, keys)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("access subject %q, want user id %q", claims.Subject, user.ID)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		t.Fatalf("unexpected token type %q", claims.TokenType)
	}
}

func TestLogin_ByEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	if _, err := s.Login(context.Background(), "alice@example.com", "correct horse battery"); err != nil {
		t.Fatalf("Login by email error: %v", err)
	}
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	_, errWrongPassword := s.Login(context.Background(), "alice", "wrong password!")
	_, errUnknownUser := s.Login(context.Background(), "nobody", "wrong password!")

	if !errors.Is(errWrongPassword, common.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPassword)
	}
	if !errors.Is(errUnknownUser, common.ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", errUnknownUser)
	}
}

func TestLogin_UpgradesStaleHash(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))

	// Seed with a hash produced under weaker parameters than the service's.
	weak := password.NewArgon2(password.Config{MemoryKB: 512, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	oldHash, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	user := rm.u.add(&models.User{Username: "alice", Email: "alice@example.com", PasswordHash: oldHash, IsActive: true})

	if _, err := s.Login(context.Background(), "alice", "correct horse battery"); err != nil {
		t.Fatalf("Login error: %v", err)
	}

	stored, _ := rm.u.GetByID(context.Background(), user.ID)
	if stored.PasswordHash == oldHash {
		t.Fatal("expected the stored hash to be re-written with current parameters")
	}
	if !s.hasher.Verify("correct horse battery", stored.PasswordHash) {
		t.Fatal("upgraded hash no longer verifies")
	}
}

// --- refresh rotation ---

func TestRefresh_RotatesAndRetiresOldToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	user := seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	oldClaims, _ := auth.ParseToken(pair.RefreshToken, keys)

	rotated, err := s.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	// The presented token is retired and cannot be replayed.
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("replay: expected ErrInvalidToken, got %v", err)
	}

	// The replacement is linked to the retired row.
	newClaims, _ := auth.ParseToken(rotated.RefreshToken, keys)
	row, err := rm.r.Get(context.Background(), newClaims.TokenID)
	if err != nil {
		t.Fatalf("new ledger row missing: %v", err)
	}
	if row.PreviousTokenID == nil || *row.PreviousTokenID != oldClaims.TokenID {
		t.Fatalf("previous_token_id = %v, want %q", row.PreviousTokenID, oldClaims.TokenID)
	}
	if row.UserID != user.ID {
		t.Fatalf("new row user %q, want %q", row.UserID, user.ID)
	}
	if got := rm.r.activeCount(); got != 1 {
		t.Fatalf("active rows after rotation: %d, want 1", got)
	}
}

func TestRefresh_ChainIntegrity(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	const rotations = 4
	ids := make([]string, 0, rotations+1)
	claims, _ := auth.ParseToken(pair.RefreshToken, keys)
	ids = append(ids, claims.TokenID)

	for i := 0; i < rotations; i++ {
		pair, err = s.Refresh(context.Background(), pair.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh %d error: %v", i, err)
		}
		claims, _ = auth.ParseToken(pair.RefreshToken, keys)
		ids = append(ids, claims.TokenID)
	}

	if len(rm.r.rows) != rotations+1 {
		t.Fatalf("ledger rows: %d, want %d", len(rm.r.rows), rotations+1)
	}
	if got := rm.r.activeCount(); got != 1 {
		t.Fatalf("active rows: %d, want 1", got)
	}

	// Walk the chain backwards: each row points at its predecessor.
	for i := len(ids) - 1; i > 0; i-- {
		row, err := rm.r.Get(context.Background(), ids[i])
		if err != nil {
			t.Fatalf("row %d missing: %v", i, err)
		}
		if row.PreviousTokenID == nil || *row.PreviousTokenID != ids[i-1] {
			t.Fatalf("row %d previous = %v, want %q", i, row.PreviousTokenID, ids[i-1])
		}
	}
	first, _ := rm.r.Get(context.Background(), ids[0])
	if first.PreviousTokenID != nil {
		t.Fatalf("lineage root must have nil previous, got %q", *first.PreviousTokenID)
	}
}

func TestRefresh_RejectsBadTokens(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"access token presented as refresh", pair.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Refresh(context.Background(), tt.token); !errors.Is(err, common.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRefresh_ExpiredLedgerRow(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	// Age the ledger row past its expiry while the JWT itself stays valid.
	claims, _ := auth.ParseToken(pair.RefreshToken, keys)
	rm.r.mu.Lock()
	rm.r.rows[claims.TokenID].ExpiresAt = time.Now().Add(-time.Minute)
	rm.r.mu.Unlock()

	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired ledger row, got %v", err)
	}
}

func TestRefresh_CreateFailureTerminatesLineage(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	rm.r.mu.Lock()
	rm.r.createErr = errors.New("disk full")
	rm.r.mu.Unlock()

	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrSession) {
		t.Fatalf("expected ErrSession, got %v", err)
	}

	// The old row is gone for good: retrying does not resurrect the lineage.
	rm.r.mu.Lock()
	rm.r.createErr = nil
	rm.r.mu.Unlock()

	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after terminated lineage, got %v", err)
	}
	if got := rm.r.activeCount(); got != 0 {
		t.Fatalf("active rows: %d, want 0", got)
	}
}

func TestRefresh_ConcurrentUseOfOneToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.Refresh(context.Background(), pair.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrInvalidToken):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != 1 {
		t.Fatalf("got %d successes and %d rejections, want exactly 1 and 1", ok, invalid)
	}
	if got := rm.r.activeCount(); got != 1 {
		t.Fatalf("active rows after the race: %d, want 1", got)
	}
}

// --- logout ---

func TestLogout_RevokesAndIsIdempotent(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if err := s.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if got := rm.r.activeCount(); got != 0 {
		t.Fatalf("active rows after logout: %d, want 0", got)
	}

	// Second logout with the same token, and with garbage, both succeed.
	if err := s.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("repeat Logout error: %v", err)
	}
	if err := s.Logout(context.Background(), "not-a-jwt"); err != nil {
		t.Fatalf("garbage Logout error: %v", err)
	}

	// A revoked token no longer refreshes.
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

// --- session listing and guards ---

func TestListSessions_DefaultLimitAndOrder(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	user := seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	for i := 0; i < sessionListLimit+2; i++ {
		if _, err := s.Login(context.Background(), "alice", "correct horse battery"); err != nil {
			t.Fatalf("Login %d error: %v", i, err)
		}
	}

	sessions, err := s.ListSessions(context.Background(), user.ID, 0)
	if err != nil {
		t.Fatalf("ListSessions error: %v", err)
	}
	if len(sessions) != sessionListLimit {
		t.Fatalf("sessions: %d, want %d", len(sessions), sessionListLimit)
	}
	for i := 1; i < len(sessions); i++ {
		if sessions[i].CreatedAt.After(sessions[i-1].CreatedAt) {
			t.Fatal("sessions are not ordered newest first")
		}
	}
}

func TestGetCurrentUser_RejectsRefreshToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	if _, err := s.GetCurrentUser(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a refresh token, got %v", err)
	}
}

func TestGetCurrentUser_InactiveUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, newTestKeys(t))
	user := seedUser(t, s, rm, "alice", "alice@example.com", "correct horse battery")

	pair, err := s.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	rm.u.mu.Lock()
	rm.u.byID[user.ID].IsActive = false
	rm.u.mu.Unlock()

	if _, err := s.GetCurrentUser(context.Background(), pair.AccessToken); !errors.Is(err, common.ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestRequireSuperuser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newUserService(t, db, newFakeRepoManager(), newTestKeys(t))

	if err := s.RequireSuperuser(&models.User{IsSuperuser: true}); err != nil {
		t.Fatalf("superuser rejected: %v", err)
	}
	if err := s.RequireSuperuser(&models.User{}); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := s.RequireSuperuser(nil); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil user, got %v", err)
	}
}

// --- end to end ---

func TestSessionLifecycle(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	keys := newTestKeys(t)
	rm := newFakeRepoManager()
	s := newUserService(t, db, rm, keys)

	_, pair, err := s.Register(context.Background(), "alice", "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	rotated, err := s.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	// The original refresh token is spent.
	if _, err := s.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}

	if err := s.Logout(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("Logout error: %v", err)
	}

	// After logout nothing in the lineage refreshes.
	if _, err := s.Refresh(context.Background(), rotated.RefreshToken); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
	if got := rm.r.activeCount(); got != 0 {
		t.Fatalf("active rows at end of lifecycle: %d, want 0", got)
	}
}
