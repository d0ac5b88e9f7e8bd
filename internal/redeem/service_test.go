package redeem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-exchange/internal/clock"
	"ticket-exchange/internal/credential"
	"ticket-exchange/models"
	"ticket-exchange/utils"
)

type fakeScanLedger struct {
	records    []models.ScanRecord
	failAppend bool
}

func (f *fakeScanLedger) Append(_ context.Context, rec models.ScanRecord) error {
	if f.failAppend && rec.Outcome == models.ScanOutcomeAccepted {
		return errors.New("ledger unavailable")
	}
	f.records = append(f.records, rec)
	return nil
}

type redeemFixture struct {
	svc    *Service
	mock   redismock.ClientMock
	ledger *fakeScanLedger
	clock  *clock.Fake
	codec  *credential.Codec
	now    time.Time
}

func newRedeemFixture(t *testing.T) *redeemFixture {
	t.Helper()

	db, mock := redismock.NewClientMock()

	now := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	codec, err := credential.NewCodec(
		bytes.Repeat([]byte{0x42}, 32),
		[]byte("test-mac-key"),
		300,
		clk,
	)
	require.NoError(t, err)

	ledger := &fakeScanLedger{}

	return &redeemFixture{
		svc:    NewService(db, codec, ledger, clk, nil),
		mock:   mock,
		ledger: ledger,
		clock:  clk,
		codec:  codec,
		now:    now,
	}
}

func (f *redeemFixture) credential(t *testing.T) models.Credential {
	t.Helper()

	cred, err := f.codec.Issue(models.CredentialClaim{
		TicketID: "ticket-001",
		EventID:  "event-abc",
		Section:  "A12",
		Price:    decimal.RequireFromString("49.99"),
	})
	require.NoError(t, err)

	return cred
}

func TestRedeem_Accepted(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	f.mock.ExpectEval(claimScanScript, []string{"scan:accepted:ticket-001"},
		"gate-1", f.now.Unix()).
		SetVal([]any{int64(1), "gate-1"})

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemAccepted, res.Status)
	require.NotNil(t, res.Claim)
	assert.Equal(t, "ticket-001", res.Claim.TicketID)

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, models.ScanOutcomeAccepted, f.ledger.records[0].Outcome)
	assert.Equal(t, "gate-1", f.ledger.records[0].Scanner)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_SecondScanIsDuplicate(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	f.mock.ExpectEval(claimScanScript, []string{"scan:accepted:ticket-001"},
		"gate-9", f.now.Unix()).
		SetVal([]any{int64(0), "gate-1"})

	res := f.svc.Redeem(context.Background(), cred, "gate-9")

	assert.Equal(t, models.RedeemAlreadyScanned, res.Status)
	assert.Equal(t, "gate-1", res.ScannedBy)

	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, models.ScanOutcomeDuplicate, f.ledger.records[0].Outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_ExpiredCredential(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	// past the window: no claim attempt is made at all
	f.clock.Advance(10 * time.Minute)

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemExpired, res.Status)
	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, models.ScanOutcomeExpired, f.ledger.records[0].Outcome)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_WindowBoundary(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	// one second before expiry the claim still goes through
	f.clock.Set(time.Unix(cred.ExpiresAt-1, 0))
	f.mock.ExpectEval(claimScanScript, []string{"scan:accepted:ticket-001"},
		"gate-1", cred.ExpiresAt-1).
		SetVal([]any{int64(1), "gate-1"})

	res := f.svc.Redeem(context.Background(), cred, "gate-1")
	assert.Equal(t, models.RedeemAccepted, res.Status)

	// one second past expiry it does not
	f.clock.Set(time.Unix(cred.ExpiresAt+1, 0))

	res = f.svc.Redeem(context.Background(), cred, "gate-1")
	assert.Equal(t, models.RedeemExpired, res.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_NotYetValidCredential(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	f.clock.Advance(-time.Minute)

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemExpired, res.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_TamperedCredential(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	cred.ExpiresAt += 3600 // stretch the window without re-signing

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemTampered, res.Status)

	// tampering is recorded as invalid with the precise reason
	require.Len(t, f.ledger.records, 1)
	assert.Equal(t, models.ScanOutcomeInvalid, f.ledger.records[0].Outcome)
	assert.Equal(t, "tampered", f.ledger.records[0].Reason)
	assert.Equal(t, "unknown", f.ledger.records[0].TicketID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_MalformedCredential(t *testing.T) {
	f := newRedeemFixture(t)

	cred := models.Credential{
		Encrypted: "!!not-base64!!",
		Timestamp: f.now.Unix(),
		ExpiresAt: f.now.Unix() + 300,
	}
	cred.HMAC = utils.Hmac256(
		[]byte(fmt.Sprintf("%s|%d|%d", cred.Encrypted, cred.Timestamp, cred.ExpiresAt)),
		[]byte("test-mac-key"),
	)

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemMalformed, res.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_StoreFailureFailsClosed(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)

	f.mock.ExpectEval(claimScanScript, []string{"scan:accepted:ticket-001"},
		"gate-1", f.now.Unix()).
		SetErr(errors.New("connection refused"))

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	assert.Equal(t, models.RedeemInvalid, res.Status)
	assert.Error(t, res.Err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRedeem_LedgerFailureReleasesClaim(t *testing.T) {
	f := newRedeemFixture(t)
	cred := f.credential(t)
	f.ledger.failAppend = true

	f.mock.ExpectEval(claimScanScript, []string{"scan:accepted:ticket-001"},
		"gate-1", f.now.Unix()).
		SetVal([]any{int64(1), "gate-1"})
	f.mock.ExpectDel("scan:accepted:ticket-001").SetVal(1)

	res := f.svc.Redeem(context.Background(), cred, "gate-1")

	// the durable record could not be written, so the attempt is rejected
	// and the hot claim released; the ticket stays redeemable
	assert.Equal(t, models.RedeemInvalid, res.Status)
	assert.Error(t, res.Err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
