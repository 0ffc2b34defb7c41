package ethauth_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ethauth"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func quietLogger() ethauth.Logger {
	return ethauth.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestDB opens a private in-memory sqlite database with the schema applied
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := ethauth.OpenDB(ethauth.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = ethauth.Migrate(context.Background(), db)
	require.NoError(t, err)

	return db
}

func newTestRepo(t *testing.T) ethauth.RepositoryManager {
	t.Helper()
	return ethauth.NewRepositoryManager(newTestDB(t))
}

func newTestNonces(t *testing.T, repo ethauth.RepositoryManager) *ethauth.NonceManager {
	t.Helper()
	nonces, err := ethauth.NewNonceManager(repo.Users(), 0)
	require.NoError(t, err)
	return nonces
}

func newTestTokens() *ethauth.TokenService {
	return ethauth.NewTokenService([]byte(testSigningKey), 1, "ethauth-test", nil, quietLogger())
}

type testKey struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testKey{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// sign produces a personal_sign signature with v in the 27/28 form wallets use
func (k testKey) sign(t *testing.T, nonce int64) string {
	t.Helper()
	return k.signMessage(t, ethauth.ChallengeMessage(nonce))
}

func (k testKey) signMessage(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), k.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// seedUser inserts user with the default role
func seedUser(t *testing.T, repo ethauth.RepositoryManager, user *ethauth.User) *ethauth.User {
	t.Helper()

	ctx := context.Background()
	role, err := repo.Roles().FindByType(ctx, ethauth.RoleTypeAuthenticated)
	require.NoError(t, err)

	if user.RoleID == uuid.Nil {
		user.RoleID = role.ID
	}

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().CreateTx(ctx, tx, user)
		return err
	})
	require.NoError(t, err)

	found, err := repo.Users().FindOne(ctx, ethauth.UserQuery{ID: user.ID})
	require.NoError(t, err)
	return found
}

func reload(t *testing.T, repo ethauth.RepositoryManager, id uuid.UUID) *ethauth.User {
	t.Helper()
	user, err := repo.Users().FindOne(context.Background(), ethauth.UserQuery{ID: id})
	require.NoError(t, err)
	return user
}

func policyWith(mutate func(p *ethauth.Policy)) *ethauth.Policy {
	p := ethauth.DefaultPolicy()
	if mutate != nil {
		mutate(p)
	}
	return p
}

// outbox records every email it is asked to send
type outbox struct {
	mu   sync.Mutex
	sent []ethauth.EmailMessage
	err  error
}

func (o *outbox) Send(_ context.Context, msg ethauth.EmailMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) messages() []ethauth.EmailMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ethauth.EmailMessage(nil), o.sent...)
}

func (o *outbox) last(t *testing.T) ethauth.EmailMessage {
	t.Helper()
	msgs := o.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

var errSMTPDown = errors.New("smtp: connection refused")

// activityLog records the activity events
type activityLog struct {
	mu     sync.Mutex
	events []ethauth.ActivityEvent
}

func (a *activityLog) Record(_ context.Context, event ethauth.ActivityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *activityLog) types() []ethauth.ActivityEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ethauth.ActivityEventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.EventType)
	}
	return out
}

var (
	resetCodeRe        = regexp.MustCompile(`code=([0-9a-f]+)`)
	confirmationCodeRe = regexp.MustCompile(`confirmation=([0-9a-f]+)`)
)

func extract(t *testing.T, re *regexp.Regexp, body string) string {
	t.Helper()
	m := re.FindStringSubmatch(body)
	require.Len(t, m, 2, body)
	return m[1]
}

func requireKind(t *testing.T, err error, kind ethauth.Kind, id string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, ethauth.KindOf(err), err.Error())
	if id != "" {
		require.Equal(t, id, ethauth.ErrorID(err))
	}
}
