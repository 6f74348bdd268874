// Package events defines the outbox-style notification messages. The
// orchestrator publishes DecisionRecorded on terminal decision changes;
// HoldTransitioned is defined here but nothing in this module publishes it.
// Publishing is best-effort: publish failures are logged but never fail the
// authorization pipeline itself, mirroring the teacher's
// FundCardMessage/MonitorTransactionMessage envelope and its separation
// between the core decision and the notification side effect.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

const (
	StreamDecisions = "decisions"
	StreamHolds     = "holds"
)

// DecisionRecorded is published whenever a decision reaches a terminal
// outcome for its current lifecycle stage: APPROVED, PARTIAL, DECLINED,
// or CHALLENGE.
type DecisionRecorded struct {
	DecisionID     int64                 `json:"decisionId"`
	RequestID      int64                 `json:"requestId"`
	Decision       domain.DecisionOutcome `json:"decision"`
	ReasonCode     domain.ReasonCode      `json:"reasonCode"`
	ApprovedAmount decimal.Decimal        `json:"approvedAmount"`
	Currency       string                 `json:"currency"`
	HoldID         *int64                 `json:"holdId,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Validate reports whether the message carries the minimum fields a
// consumer needs to act on it.
func (m DecisionRecorded) Validate() error {
	if m.DecisionID == 0 || m.RequestID == 0 {
		return fmt.Errorf("decision recorded event missing decisionId/requestId")
	}
	return nil
}

// HoldTransitioned describes a hold leaving ACTIVE: captured, released, or
// expired. The hold manager does not publish it.
type HoldTransitioned struct {
	HoldID         int64            `json:"holdId"`
	RequestID      int64            `json:"requestId"`
	Status         domain.HoldStatus `json:"status"`
	CapturedAmount decimal.Decimal   `json:"capturedAmount"`
	Currency       string            `json:"currency"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Validate reports whether the message carries the minimum fields a
// consumer needs to act on it.
func (m HoldTransitioned) Validate() error {
	if m.HoldID == 0 {
		return fmt.Errorf("hold transitioned event missing holdId")
	}
	return nil
}

// Publisher is the minimal contract events needs from pkg/queue, kept
// narrow so tests can substitute a fake without constructing a real
// Redis-backed StreamQueue.
type Publisher interface {
	Publish(ctx context.Context, stream string, data []byte) (string, error)
}

// Marshal is a small helper so callers don't repeat the json.Marshal +
// error-wrap boilerplate at every publish site.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
