package services

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/auth"
	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/internal/pending"
	"github.com/BradenHooton/totpgate/internal/repositories"
	pkgauth "github.com/BradenHooton/totpgate/pkg/auth"
	"github.com/BradenHooton/totpgate/pkg/clock"
	pkglogger "github.com/BradenHooton/totpgate/pkg/logger"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// testEnv wires both services over in-memory storage and a fake clock
type testEnv struct {
	clock       *clock.Fake
	principals  PrincipalRepository
	enrollments *pending.MemoryStore[models.PendingEnrollment]
	challenges  *pending.MemoryStore[models.PendingLoginChallenge]
	active      *pending.MemoryStore[string]
	disables    *pending.MemoryStore[time.Time]
	totpMgr     *auth.TOTPManager
	tm          *auth.TokenManager
	hasher      *pkgauth.PasswordHasher
	notifier    *RecordingDispatcher
	auth        *AuthService
	totp        *TOTPService
}

const testPassword = "correct-horse-battery"

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRepo(t, repositories.NewMemoryPrincipalRepository())
}

func newTestEnvWithRepo(t *testing.T, repo PrincipalRepository) *testEnv {
	t.Helper()

	key := make([]byte, auth.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	vault, err := auth.NewVault(key)
	require.NoError(t, err)

	hasher, err := pkgauth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	clk := clock.NewFake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)
	auditLogger := pkglogger.NewAuditLogger(logger)

	env := &testEnv{
		clock:       clk,
		principals:  repo,
		enrollments: pending.NewMemoryStore[models.PendingEnrollment](clk),
		challenges:  pending.NewMemoryStore[models.PendingLoginChallenge](clk),
		active:      pending.NewMemoryStore[string](clk),
		disables:    pending.NewMemoryStore[time.Time](clk),
		totpMgr:     auth.NewTOTPManager(vault, "PrimeGenesis", clk),
		tm:          auth.NewTokenManager("test-secret-32-characters-long!!", 24*time.Hour, "totpgate", clk),
		hasher:      hasher,
		notifier:    &RecordingDispatcher{},
	}

	cfg := DefaultTOTPConfig()

	env.totp = NewTOTPService(repo, env.enrollments, env.disables, env.totpMgr, env.tm, hasher,
		env.notifier, nil, clk, logger, auditLogger, cfg)
	env.auth = NewAuthService(repo,
		ChallengeStores{Challenges: env.challenges, Active: env.active},
		env.totp, env.totpMgr, env.tm, hasher, nil, clk, logger, auditLogger, cfg)

	return env
}

// slowPrincipalRepository adds a fixed latency to GetByID, like a database round trip
type slowPrincipalRepository struct {
	PrincipalRepository
	delay time.Duration
}

func (r *slowPrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	time.Sleep(r.delay)
	return r.PrincipalRepository.GetByID(ctx, id)
}

func newSlowTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithRepo(t, &slowPrincipalRepository{
		PrincipalRepository: repositories.NewMemoryPrincipalRepository(),
		delay:               2 * time.Millisecond,
	})
}

// guessOutcomes tallies the results of concurrent guesses
type guessOutcomes struct {
	evaluated atomic.Int32
	tooMany   atomic.Int32
	gone      atomic.Int32
	other     atomic.Int32
}

// guessConcurrently runs n copies of guess at once and classifies each error
func guessConcurrently(n int, guess func() error) *guessOutcomes {
	out := &guessOutcomes{}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := guess()
			switch {
			case errors.Is(err, models.ErrAuthentication):
				out.evaluated.Add(1)
			case errors.Is(err, models.ErrTooManyAttempts):
				out.tooMany.Add(1)
			case errors.Is(err, models.ErrState):
				out.gone.Add(1)
			default:
				out.other.Add(1)
			}
		}()
	}
	wg.Wait()
	return out
}

// register creates an individual principal and returns the registration response
func (e *testEnv) register(t *testing.T, identifier string) *RegisterResponse {
	t.Helper()

	resp, err := e.auth.Register(context.Background(), RegisterInput{
		Identifier: identifier,
		Password:   testPassword,
		Type:       models.PrincipalTypeIndividual,
		FirstName:  "Test",
		LastName:   "User",
	}, RequestMeta{})
	require.NoError(t, err)
	return resp
}

// enroll registers a principal and completes TOTP setup, returning its id and plaintext secret
func (e *testEnv) enroll(t *testing.T, identifier string) (string, string) {
	t.Helper()

	reg := e.register(t, identifier)
	_, err := e.totp.VerifySetup(context.Background(), reg.Principal.ID, e.code(t, reg.Enrollment.Secret), RequestMeta{})
	require.NoError(t, err)
	return reg.Principal.ID, reg.Enrollment.Secret
}

// code returns the current TOTP code for secret according to the fake clock
func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, e.clock.Now())
	require.NoError(t, err)
	return code
}

// wrongCode returns a well-formed code that is not valid anywhere in the window
func (e *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()

	valid := map[string]bool{}
	for _, offset := range []time.Duration{-auth.Period * time.Second, 0, auth.Period * time.Second} {
		c, err := totp.GenerateCode(secret, e.clock.Now().Add(offset))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	t.Fatal("no wrong code available")
	return ""
}
