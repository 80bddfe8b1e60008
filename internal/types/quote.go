package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Branch identifies an insurance line handled by the portals.
type Branch string

const (
	BranchTrafik Branch = "TRAFIK"
	BranchKasko  Branch = "KASKO"
	BranchHealth Branch = "HEALTH"
	BranchDask   Branch = "DASK"
	BranchTravel Branch = "TRAVEL"
)

// ParseBranch normalizes user input into a Branch.
func ParseBranch(s string) (Branch, error) {
	b := Branch(strings.ToUpper(strings.TrimSpace(s)))
	switch b {
	case BranchTrafik, BranchKasko, BranchHealth, BranchDask, BranchTravel:
		return b, nil
	}
	return "", fmt.Errorf("unknown branch %q", s)
}

// ProviderID names one external portal (e.g. "sompo", "koru").
type ProviderID string

// QuoteRequest is immutable once accepted by the orchestrator.
type QuoteRequest struct {
	RequestID      string         `json:"request_id"`
	Branch         Branch         `json:"branch"`
	Providers      []ProviderID   `json:"providers"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CustomerData   map[string]any `json:"customer_data"`
}

// OutcomeState is the terminal state of one automation session run.
type OutcomeState string

const (
	OutcomeCompleted OutcomeState = "Completed"
	OutcomeFailed    OutcomeState = "Failed"
)

// SessionOutcome is produced by one session run and consumed exactly once
// by the normalizer.
type SessionOutcome struct {
	Provider   ProviderID
	State      OutcomeState
	RawPayload map[string]any
	Err        *ErrorInfo
	Duration   time.Duration
}

// ErrorInfo captures a typed session failure for aggregation.
type ErrorInfo struct {
	Code    string `json:"code"`
	State   string `json:"state,omitempty"`
	Message string `json:"message"`
}

func (e *ErrorInfo) String() string {
	if e == nil {
		return ""
	}
	if e.State != "" {
		return fmt.Sprintf("%s@%s: %s", e.Code, e.State, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// OfferStatus marks whether a provider produced a usable quote.
type OfferStatus string

const (
	OfferCompleted OfferStatus = "Completed"
	OfferFailed    OfferStatus = "Failed"
)

// Offer is the canonical normalized quote for one provider within one
// request. Never mutated after creation.
type Offer struct {
	Provider     ProviderID       `json:"provider"`
	Branch       Branch           `json:"branch"`
	CustomerRef  string           `json:"customer_ref,omitempty"`
	Price        *decimal.Decimal `json:"price"`
	Currency     string           `json:"currency"`
	QuoteNumber  string           `json:"quote_number,omitempty"`
	RawPayload   map[string]any   `json:"raw_payload,omitempty"`
	Status       OfferStatus      `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// RequestStatus is the lifecycle status of an aggregate quote request.
type RequestStatus string

const (
	StatusRunning         RequestStatus = "Running"
	StatusCompleted       RequestStatus = "Completed"
	StatusPartiallyFailed RequestStatus = "PartiallyFailed"
	StatusFailed          RequestStatus = "Failed"
)

// FailedProvider records why one provider produced no offer.
type FailedProvider struct {
	Provider ProviderID `json:"provider"`
	Reason   string     `json:"reason"`
}

// QuoteResult aggregates per-provider outcomes for one request. It is
// mutated only by the orchestrator goroutine that owns the request_id;
// readers get snapshots via Clone.
type QuoteResult struct {
	RequestID       string           `json:"request_id"`
	Status          RequestStatus    `json:"status"`
	Offers          []Offer          `json:"offers"`
	FailedProviders []FailedProvider `json:"failed_providers"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// Terminal reports whether the result can no longer change.
func (r *QuoteResult) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusPartiallyFailed, StatusFailed:
		return true
	}
	return false
}

// Clone returns a point-in-time snapshot safe to hand to concurrent readers.
func (r *QuoteResult) Clone() QuoteResult {
	out := *r
	out.Offers = make([]Offer, len(r.Offers))
	copy(out.Offers, r.Offers)
	out.FailedProviders = make([]FailedProvider, len(r.FailedProviders))
	copy(out.FailedProviders, r.FailedProviders)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
