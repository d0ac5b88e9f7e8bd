// Package redeem enforces single-use redemption of ticket credentials. A
// ticket moves Unscanned -> Scanned exactly once; every ambiguous condition
// resolves to rejection, never acceptance.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-exchange/internal/clock"
	"ticket-exchange/internal/credential"
	"ticket-exchange/models"
	"ticket-exchange/monitoring"
	"ticket-exchange/utils"
)

// ScanLedger appends scan attempts to the durable audit trail. Records are
// append-only; the store keeps a partial unique index so that a second
// accepted record for the same ticket can never be written.
type ScanLedger interface {
	Append(ctx context.Context, rec models.ScanRecord) error
}

// claimScanScript is the atomic enforcement point for "exactly once". The
// EXISTS check and the HSET happen in one script execution, so two terminals
// presenting the same credential within milliseconds cannot both observe
// "unscanned".
const claimScanScript = `
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return {0, redis.call("HGET", key, "scanner")}
end
redis.call("HSET", key, "scanner", ARGV[1], "scanned_at", ARGV[2])
return {1, ARGV[1]}
`

type Service struct {
	Redis   *redis.Client
	codec   *credential.Codec
	ledger  ScanLedger
	clock   clock.Clock
	breaker *utils.CircuitBreaker
	monitor *monitoring.Monitor
}

func NewService(redisClient *redis.Client, codec *credential.Codec, ledger ScanLedger, clk clock.Clock, monitor *monitoring.Monitor) *Service {
	return &Service{
		Redis:   redisClient,
		codec:   codec,
		ledger:  ledger,
		clock:   clk,
		breaker: utils.NewCircuitBreaker("scan-store"),
		monitor: monitor,
	}
}

// Redeem decodes and integrity-checks the credential, enforces the validity
// window and consumes the ticket's single use. The returned result is a
// closed verdict; callers must branch on Status explicitly.
func (s *Service) Redeem(ctx context.Context, cred models.Credential, scannerID string) models.RedeemResult {
	started := time.Now()
	res := s.redeem(ctx, cred, scannerID)

	if s.monitor != nil {
		eventID := "unknown"
		if res.Claim != nil {
			eventID = res.Claim.EventID
		}
		s.monitor.TrackScan(eventID, res.Status.String())
		s.monitor.TrackRedeemDuration(res.Status.String(), time.Since(started))
	}

	return res
}

func (s *Service) redeem(ctx context.Context, cred models.Credential, scannerID string) models.RedeemResult {
	now := s.clock.Now()

	claim, err := s.codec.Decode(cred)
	if err != nil {
		status := models.RedeemInvalid
		switch {
		case errors.Is(err, credential.ErrMalformed):
			status = models.RedeemMalformed
		case errors.Is(err, credential.ErrTampered):
			status = models.RedeemTampered
			slog.Warn("credential failed integrity check", "scanner", scannerID)
		}
		s.record(ctx, models.ScanRecord{
			TicketID:  claim.TicketID,
			Scanner:   scannerID,
			ScannedAt: now,
			Outcome:   status.Outcome(),
			Reason:    status.String(),
		})
		return models.RedeemResult{Status: status, Err: err}
	}

	if now.Unix() < cred.Timestamp || now.Unix() > cred.ExpiresAt {
		s.record(ctx, models.ScanRecord{
			TicketID:  claim.TicketID,
			Scanner:   scannerID,
			ScannedAt: now,
			Outcome:   models.ScanOutcomeExpired,
		})
		return models.RedeemResult{Status: models.RedeemExpired, Claim: &claim}
	}

	flag, priorScanner, err := s.claimOnce(ctx, claim.TicketID, scannerID, now)
	if err != nil {
		// Storage trouble is ambiguity, and ambiguity fails closed.
		slog.Error("scan claim failed", "ticket", claim.TicketID, "error", err)
		return models.RedeemResult{Status: models.RedeemInvalid, Claim: &claim, Err: err}
	}

	if flag == 0 {
		s.record(ctx, models.ScanRecord{
			TicketID:  claim.TicketID,
			Scanner:   scannerID,
			ScannedAt: now,
			Outcome:   models.ScanOutcomeDuplicate,
		})
		return models.RedeemResult{
			Status:    models.RedeemAlreadyScanned,
			Claim:     &claim,
			ScannedBy: priorScanner,
		}
	}

	if err := s.ledger.Append(ctx, models.ScanRecord{
		TicketID:  claim.TicketID,
		Scanner:   scannerID,
		ScannedAt: now,
		Outcome:   models.ScanOutcomeAccepted,
	}); err != nil {
		// The durable ledger could not take the accepted record, so the
		// claim is released and the attempt rejected. The ticket stays
		// redeemable; the accepted invariant stays intact.
		s.Redis.Del(ctx, scanKey(claim.TicketID))
		slog.Error("scan ledger append failed", "ticket", claim.TicketID, "error", err)
		return models.RedeemResult{Status: models.RedeemInvalid, Claim: &claim, Err: err}
	}

	return models.RedeemResult{Status: models.RedeemAccepted, Claim: &claim}
}

// claimOnce runs the conditional claim through the circuit breaker. It
// returns 1 when this scanner consumed the ticket, 0 with the prior scanner
// identity when it was already consumed.
func (s *Service) claimOnce(ctx context.Context, ticketID, scannerID string, now time.Time) (int64, string, error) {
	result, err := s.breaker.Execute(ctx, func() (any, error) {
		return s.Redis.Eval(ctx, claimScanScript,
			[]string{scanKey(ticketID)},
			scannerID, now.Unix(),
		).Result()
	})
	if err != nil {
		return 0, "", err
	}

	reply, ok := result.([]any)
	if !ok || len(reply) < 2 {
		return 0, "", fmt.Errorf("redeem: unexpected claim reply: %v", result)
	}

	flag, ok := reply[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("redeem: unexpected claim flag: %v", reply[0])
	}
	scanner, _ := reply[1].(string)

	return flag, scanner, nil
}

// record appends a non-accepted audit row. Best effort: a failed audit write
// for a rejection must not change the verdict.
func (s *Service) record(ctx context.Context, rec models.ScanRecord) {
	if rec.TicketID == "" {
		rec.TicketID = "unknown"
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		slog.Error("scan audit append failed", "ticket", rec.TicketID, "error", err)
	}
}

func scanKey(ticketID string) string {
	return fmt.Sprintf("scan:accepted:%s", ticketID)
}
