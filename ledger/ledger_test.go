package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/store/memstore"
)

func TestLedgerRecordGesture(t *testing.T) {
	t.Parallel()

	t.Run("it debits the endorser and appends the gesture", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)

		// Act
		result, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 30)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.Equal(t, int64(30), result.Score)
		assert.False(t, result.Promoted)
		assert.Equal(t, "token-1", result.Gesture.Token)
		assert.Equal(t, int64(20), fx.bank.Balance("bob"))
		assertScore(t, fx, "c1", 30)
	})

	t.Run("it rejects an endorser who cannot cover the amount", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 5)

		// Act
		_, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 6)

		// Assert
		assertRejected(t, err, claim.ErrInsufficientBalance, claim.Pending)
		assert.Equal(t, int64(5), fx.bank.Balance("bob"))
		assertScore(t, fx, "c1", 0)
	})

	t.Run("it rejects gestures on a settled claim without debiting", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)
		fx.forceState(t, "c1", claim.Settled)

		// Act
		_, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 10)

		// Assert
		assertRejected(t, err, claim.ErrClaimSettled, claim.Settled)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
	})

	t.Run("it rejects an unknown claim", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)

		// Act
		_, err := fx.ledger.RecordGesture(t.Context(), "nope", "bob", 10)

		// Assert
		assert.ErrorIs(t, err, claim.ErrClaimNotFound)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
	})

	t.Run("it rejects malformed gestures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)

		testCases := []struct {
			name     string
			endorser string
			amount   int64
		}{
			{name: "empty endorser", endorser: "", amount: 1},
			{name: "zero amount", endorser: "bob", amount: 0},
			{name: "negative amount", endorser: "bob", amount: -5},
		}

		for _, tc := range testCases {
			// Act
			_, err := fx.ledger.RecordGesture(t.Context(), "c1", tc.endorser, tc.amount)

			// Assert
			assert.ErrorIs(t, err, claim.ErrInvalidRequest, tc.name)
		}
	})
}

func TestLedgerPromotion(t *testing.T) {
	t.Parallel()

	t.Run("it promotes when the score reaches the threshold exactly", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 100)
		_, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 99)
		require.NoError(t, err)
		assertState(t, fx, "c1", claim.Pending)

		// Act
		result, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 1)

		// Assert
		require.NoError(t, err)
		assert.True(t, result.Promoted)
		assertState(t, fx, "c1", claim.Eligible)
	})

	t.Run("it keeps accepting gestures on an eligible claim", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 10)
		fx.bank.Deposit("bob", 30)
		_, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 10)
		require.NoError(t, err)

		// Act
		result, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 10)

		// Assert
		require.NoError(t, err)
		assert.False(t, result.Promoted)
		assert.Equal(t, int64(20), result.Score)
		assertState(t, fx, "c1", claim.Eligible)
	})

	t.Run("it promotes exactly once under concurrent gestures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 10)
		endorsers := make([]string, 20)
		for i := range endorsers {
			endorsers[i] = fmt.Sprintf("e%02d", i)
			fx.bank.Deposit(endorsers[i], 10)
		}

		// Act
		var promoted atomic.Int32
		var wg sync.WaitGroup
		for _, e := range endorsers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := fx.ledger.RecordGesture(t.Context(), "c1", e, 10)
				assert.NoError(t, err)
				if result.Promoted {
					promoted.Add(1)
				}
			}()
		}
		wg.Wait()

		// Assert
		assert.Equal(t, int32(1), promoted.Load())
		assertState(t, fx, "c1", claim.Eligible)
		assertScore(t, fx, "c1", 200)
	})

	t.Run("it reconciles a claim whose promotion was missed", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 10)
		_, _, err := fx.store.AppendGesture(t.Context(), ledger.Gesture{ClaimID: "c1", Endorser: "bob", Amount: 10})
		require.NoError(t, err)

		// Act
		first, err := fx.ledger.Promote(t.Context(), "c1")
		require.NoError(t, err)
		second, err := fx.ledger.Promote(t.Context(), "c1")
		require.NoError(t, err)

		// Assert
		assert.True(t, first)
		assert.False(t, second)
		assertState(t, fx, "c1", claim.Eligible)
	})

	t.Run("it reports the threshold boundary", func(t *testing.T) {
		t.Parallel()

		// Arrange
		l := ledger.New(nil, nil, nil, ledger.WithPromotionThreshold(100))

		// Act & Assert
		assert.False(t, l.HasMetPromotionThreshold(99))
		assert.True(t, l.HasMetPromotionThreshold(100))
		assert.True(t, l.HasMetPromotionThreshold(101))
	})
}

func TestLedgerConcurrency(t *testing.T) {
	t.Parallel()

	t.Run("it never lets one balance fund two concurrent gestures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		bank := newUncheckedBank(map[string]int64{"bob": 10})
		fx := newFixtureWithBalances(t, 1000, bank)

		// Act
		var wg sync.WaitGroup
		var accepted atomic.Int32
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := fx.ledger.RecordGesture(t.Context(), "c1", "bob", 10); err == nil {
					accepted.Add(1)
				} else {
					assert.ErrorIs(t, err, claim.ErrInsufficientBalance)
				}
			}()
		}
		wg.Wait()

		// Assert
		assert.Equal(t, int32(1), accepted.Load())
		assert.Equal(t, int64(0), bank.balance("bob"))
		assertScore(t, fx, "c1", 10)
	})

	t.Run("it reaches the same score whatever the arrival order", func(t *testing.T) {
		t.Parallel()

		gestures := []struct {
			endorser string
			amount   int64
		}{
			{"bob", 3}, {"carol", 5}, {"bob", 7}, {"dave", 1}, {"carol", 2}, {"erin", 11},
		}

		var expected []ledger.Contribution
		for seed := range uint64(5) {
			// Arrange
			fx := newFixture(t, 1000)
			for _, e := range []string{"bob", "carol", "dave", "erin"} {
				fx.bank.Deposit(e, 100)
			}
			order := rand.New(rand.NewPCG(seed, seed)).Perm(len(gestures))

			// Act
			for _, i := range order {
				_, err := fx.ledger.RecordGesture(t.Context(), "c1", gestures[i].endorser, gestures[i].amount)
				require.NoError(t, err)
			}

			// Assert
			assertScore(t, fx, "c1", 29)
			contributions, err := fx.store.Contributions(t.Context(), "c1")
			require.NoError(t, err)
			if expected == nil {
				expected = contributions
			}
			assert.Equal(t, expected, contributions)
		}
	})
}

func TestLedgerReversal(t *testing.T) {
	t.Parallel()

	t.Run("it reverses the debit when the append fails", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)
		l := ledger.New(failingLog{Store: fx.store, err: errors.New("disk full")}, fx.bank, fx.registry,
			ledger.WithTokenSource(sequentialTokens()))

		// Act
		_, err := l.RecordGesture(t.Context(), "c1", "bob", 20)

		// Assert
		assert.True(t, claim.IsRetryable(err))
		assert.ErrorIs(t, err, ledger.ErrAppendFailed)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
		assertScore(t, fx, "c1", 0)
	})

	t.Run("it reverses the debit when the claim settles in between", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)
		l := ledger.New(failingLog{Store: fx.store, err: claim.ErrClaimSettled}, fx.bank, fx.registry,
			ledger.WithTokenSource(sequentialTokens()))

		// Act
		_, err := l.RecordGesture(t.Context(), "c1", "bob", 20)

		// Assert
		assertRejected(t, err, claim.ErrClaimSettled, claim.Settled)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
	})

	t.Run("it voids a debit whose outcome is unknown", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		bank := &flakyBank{Bank: fx.bank}
		fx.bank.Deposit("bob", 50)
		l := ledger.New(fx.store, bank, fx.registry, ledger.WithTokenSource(sequentialTokens()))

		// Act
		_, err := l.RecordGesture(t.Context(), "c1", "bob", 20)

		// Assert
		assert.True(t, claim.IsRetryable(err))
		assert.ErrorIs(t, err, ledger.ErrDebitFailed)
		assert.Equal(t, []string{"token-1"}, bank.reversed)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
		assertScore(t, fx, "c1", 0)
	})
	t.Run("it records nothing when the debit token was voided", func(t *testing.T) {
		t.Parallel()

		// Arrange
		fx := newFixture(t, 100)
		fx.bank.Deposit("bob", 50)
		require.NoError(t, fx.bank.ReverseDebit(t.Context(), "voided"))
		l := ledger.New(fx.store, fx.bank, fx.registry, ledger.WithTokenSource(func() string { return "voided" }))

		// Act
		_, err := l.RecordGesture(t.Context(), "c1", "bob", 20)

		// Assert
		assert.True(t, claim.IsRetryable(err))
		assert.ErrorIs(t, err, ledger.ErrDebitVoided)
		assert.Equal(t, int64(50), fx.bank.Balance("bob"))
		assertScore(t, fx, "c1", 0)
		gestures, err := fx.store.Gestures(t.Context(), "c1")
		require.NoError(t, err)
		assert.Empty(t, gestures)
	})
}

// Test fixtures

type fixture struct {
	store    *memstore.Store
	bank     *memstore.Bank
	registry *claim.Registry
	ledger   *ledger.Ledger
}

func newFixture(t *testing.T, threshold int64) *fixture {
	t.Helper()
	bank := memstore.NewBank()
	fx := newFixtureWithBalances(t, threshold, bank)
	fx.bank = bank
	return fx
}

func newFixtureWithBalances(t *testing.T, threshold int64, balances ledger.Balances) *fixture {
	t.Helper()

	store := memstore.New()
	registry := claim.NewRegistry(store, memstore.NewBlobs(), claim.Keyring{})
	require.NoError(t, store.CreateClaim(t.Context(), claim.Claim{ID: "c1", Originator: "alice", State: claim.Pending}))

	l := ledger.New(store, balances, registry,
		ledger.WithPromotionThreshold(threshold),
		ledger.WithTokenSource(sequentialTokens()),
		ledger.WithClock(fixedClock{}),
	)

	return &fixture{store: store, registry: registry, ledger: l}
}

func (fx *fixture) forceState(t *testing.T, id claim.ID, state claim.State) {
	t.Helper()
	c, err := fx.store.Claim(t.Context(), id)
	require.NoError(t, err)
	for c.State != state {
		next := claim.Eligible
		if c.State == claim.Eligible {
			next = claim.Settled
		}
		c, err = fx.store.CompareAndSetState(t.Context(), id, c.State, next)
		require.NoError(t, err)
	}
}

func sequentialTokens() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("token-%d", n.Add(1))
	}
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// failingLog appends nothing and fails with err
type failingLog struct {
	*memstore.Store
	err error
}

func (l failingLog) AppendGesture(context.Context, ledger.Gesture) (ledger.Gesture, int64, error) {
	return ledger.Gesture{}, 0, l.err
}

// flakyBank applies the debit but reports a failure, as a timed out request would
type flakyBank struct {
	*memstore.Bank
	mu       sync.Mutex
	reversed []string
}

func (b *flakyBank) Debit(ctx context.Context, account string, amount int64, token string) error {
	if err := b.Bank.Debit(ctx, account, amount, token); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func (b *flakyBank) ReverseDebit(ctx context.Context, token string) error {
	b.mu.Lock()
	b.reversed = append(b.reversed, token)
	b.mu.Unlock()
	return b.Bank.ReverseDebit(ctx, token)
}

// uncheckedBank trusts its callers: Debit never checks the balance, so only
// the ledger's per-endorser ordering prevents overdrafts
type uncheckedBank struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newUncheckedBank(balances map[string]int64) *uncheckedBank {
	return &uncheckedBank{balances: balances}
}

func (b *uncheckedBank) HasBalance(_ context.Context, account string, amount int64) (bool, error) {
	b.mu.Lock()
	ok := b.balances[account] >= amount
	b.mu.Unlock()
	// Widen the window between check and debit
	time.Sleep(time.Millisecond)
	return ok, nil
}

func (b *uncheckedBank) Debit(_ context.Context, account string, amount int64, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] -= amount
	return nil
}

func (b *uncheckedBank) ReverseDebit(context.Context, string) error {
	return nil
}

func (b *uncheckedBank) balance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// Assertions

func assertRejected(t *testing.T, err error, kind error, state claim.State) {
	t.Helper()
	require.ErrorIs(t, err, kind)
	got, ok := claim.StateOf(err)
	require.True(t, ok, "rejection should carry the claim state")
	assert.Equal(t, state, got)
}

func assertScore(t *testing.T, fx *fixture, id claim.ID, expected int64) {
	t.Helper()
	score, err := fx.ledger.ScoreOf(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, expected, score)
}

func assertState(t *testing.T, fx *fixture, id claim.ID, expected claim.State) {
	t.Helper()
	c, err := fx.registry.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, expected, c.State)
}
