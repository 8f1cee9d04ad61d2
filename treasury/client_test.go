package treasury_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/treasury"
	"github.com/screwyprof/luvsettle/treasury/treasurytest"
)

func TestClientBalances(t *testing.T) {
	t.Parallel()

	t.Run("it reads the account balance", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("bob", 42)

		// Act
		ok, err := client.HasBalance(t.Context(), "bob", 42)
		require.NoError(t, err)
		notOk, err := client.HasBalance(t.Context(), "bob", 43)
		require.NoError(t, err)

		// Assert
		assert.True(t, ok)
		assert.False(t, notOk)
	})
}

func TestClientDebits(t *testing.T) {
	t.Parallel()

	t.Run("it debits under the token as idempotency key", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("bob", 10)

		// Act
		require.NoError(t, client.Debit(t.Context(), "bob", 4, "tok-1"))
		require.NoError(t, client.Debit(t.Context(), "bob", 4, "tok-1"))

		// Assert
		assert.Equal(t, int64(6), server.Bank.Balance("bob"))
		requests := server.Requests()
		require.Len(t, requests, 2)
		assert.Equal(t, "tok-1", requests[0].Header.Get(treasury.IdempotencyKeyHeader))
	})

	t.Run("it maps payment required to insufficient balance", func(t *testing.T) {
		t.Parallel()

		// Arrange
		_, client := newServerAndClient(t)

		// Act
		err := client.Debit(t.Context(), "bob", 4, "tok-1")

		// Assert
		assert.ErrorIs(t, err, claim.ErrInsufficientBalance)
	})

	t.Run("it reverses a debit", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("bob", 10)
		require.NoError(t, client.Debit(t.Context(), "bob", 4, "tok-1"))

		// Act
		err := client.ReverseDebit(t.Context(), "tok-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(10), server.Bank.Balance("bob"))
	})

	t.Run("it reports a debit on a reversed token as voided", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("bob", 10)
		require.NoError(t, client.ReverseDebit(t.Context(), "tok-1"))

		// Act
		err := client.Debit(t.Context(), "bob", 4, "tok-1")

		// Assert
		require.ErrorIs(t, err, ledger.ErrDebitVoided)
		assert.Equal(t, int64(10), server.Bank.Balance("bob"))
	})

	t.Run("it reports server failures", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.FailNext(1, http.StatusServiceUnavailable)

		// Act
		err := client.Debit(t.Context(), "bob", 4, "tok-1")

		// Assert
		assert.ErrorIs(t, err, treasury.ErrUnexpectedStatus)
	})

	t.Run("it reports unreachable servers", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Close()

		// Act
		_, err := client.Balance(t.Context(), "bob")

		// Assert
		assert.ErrorIs(t, err, treasury.ErrRequestFailed)
	})
}

func TestClientBatches(t *testing.T) {
	t.Parallel()

	t.Run("it commits a batch once per key", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("payer", 100)
		batch := settlement.Batch{
			Key: settlement.BatchKey("c1"),
			Transfers: []settlement.Transfer{
				{From: "payer", To: "storage", Amount: 10, Kind: settlement.KindPersistenceCost},
				{From: "payer", To: "bob", Amount: 40, Kind: settlement.KindEndorserReward},
			},
		}

		// Act
		require.NoError(t, client.Commit(t.Context(), batch))
		require.NoError(t, client.Commit(t.Context(), batch))

		// Assert
		assert.Equal(t, int64(50), server.Bank.Balance("payer"))
		assert.Equal(t, int64(10), server.Bank.Balance("storage"))
		assert.Equal(t, int64(40), server.Bank.Balance("bob"))
		assert.Equal(t, "settlement:c1", server.Requests()[0].Header.Get(treasury.IdempotencyKeyHeader))
	})

	t.Run("it pays an escrowed batch out of its debit", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server, client := newServerAndClient(t)
		server.Bank.Deposit("payer", 100)
		require.NoError(t, client.Debit(t.Context(), "payer", 50, "escrow:c1:1"))
		batch := settlement.Batch{
			Key:    settlement.BatchKey("c1"),
			Escrow: "escrow:c1:1",
			Transfers: []settlement.Transfer{
				{From: "payer", To: "storage", Amount: 10, Kind: settlement.KindPersistenceCost},
				{From: "payer", To: "bob", Amount: 40, Kind: settlement.KindEndorserReward},
			},
		}

		// Act
		err := client.Commit(t.Context(), batch)
		reverseErr := client.ReverseDebit(t.Context(), "escrow:c1:1")

		// Assert
		require.NoError(t, err)
		assert.ErrorIs(t, reverseErr, treasury.ErrUnexpectedStatus)
		assert.Equal(t, int64(50), server.Bank.Balance("payer"))
		assert.Equal(t, int64(10), server.Bank.Balance("storage"))
		assert.Equal(t, int64(40), server.Bank.Balance("bob"))
	})
}

func TestClientRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("it stops waiting when the context is done", func(t *testing.T) {
		t.Parallel()

		// Arrange
		server := treasurytest.NewServer()
		t.Cleanup(server.Close)
		client := treasury.NewClient(server.Client(), server.URL, treasury.WithRateLimit(rate.Every(time.Hour), 1))
		_, err := client.Balance(t.Context(), "bob")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		defer cancel()

		// Act
		_, err = client.Balance(ctx, "bob")

		// Assert
		assert.ErrorIs(t, err, treasury.ErrRequestFailed)
		assert.Len(t, server.Requests(), 1)
	})
}

func newServerAndClient(t *testing.T) (*treasurytest.Server, *treasury.Client) {
	t.Helper()
	server := treasurytest.NewServer()
	t.Cleanup(server.Close)
	return server, treasury.NewClient(server.Client(), server.URL)
}
