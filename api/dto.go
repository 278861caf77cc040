/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNT ENCODING:
  All monetary amounts are decimal strings ("500.00"), never JSON numbers.
  Clients that round-trip amounts through float64 corrupt them.

VALIDATION:
  Validation is done in handlers and the domain, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/group.go: GroupJSON onboarding payload
*/
package api

import (
	"github.com/samiti/collection-engine/contribution"
	"github.com/samiti/collection-engine/engine"
)

// =============================================================================
// GROUP TYPES
// =============================================================================

// GroupDTO represents a group in API responses.
type GroupDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Frequency           string `json:"frequency"`
	MonthlyContribution string `json:"monthly_contribution"`
	InterestRate        string `json:"interest_rate"`
	CashInHand          string `json:"cash_in_hand"`
	CashInBank          string `json:"cash_in_bank"`
	CreatedAt           string `json:"created_at"`
}

// SummaryDTO is the group's derived financial standing.
type SummaryDTO struct {
	GroupID        string `json:"group_id"`
	CashTotal      string `json:"cash_total"`
	LoanAssets     string `json:"loan_assets"`
	ReserveFunds   string `json:"reserve_funds"`
	TotalStanding  string `json:"total_standing"`
	PerMemberShare string `json:"per_member_share"`
}

// =============================================================================
// PERIOD TYPES
// =============================================================================

// PeriodDTO represents a collection period in API responses.
type PeriodDTO struct {
	ID                 string `json:"id"`
	GroupID            string `json:"group_id"`
	Sequence           int    `json:"sequence"`
	Status             string `json:"status"`
	StartDate          string `json:"start_date"`
	DueDate            string `json:"due_date"`
	ClosedAt           string `json:"closed_at,omitempty"`
	StandingAtStart    string `json:"standing_at_start"`
	StandingAtEnd      string `json:"standing_at_end,omitempty"`
	MembersPresent     int    `json:"members_present,omitempty"`
	TotalCollected     string `json:"total_collected,omitempty"`
	InterestCollected  string `json:"interest_collected,omitempty"`
	LateFinesCollected string `json:"late_fines_collected,omitempty"`
	NewContributions   string `json:"new_contributions,omitempty"`
	CarryForward       string `json:"carry_forward,omitempty"`
}

// CurrentPeriodDTO is the open period with its entries.
type CurrentPeriodDTO struct {
	Period  PeriodDTO  `json:"period"`
	Entries []EntryDTO `json:"entries"`
}

// ClosePeriodRequest is the request to close the group's open period.
type ClosePeriodRequest struct {
	MembersPresent int                `json:"members_present"`
	Allocation     *AllocationRequest `json:"allocation,omitempty"`
	ClosedAt       string             `json:"closed_at,omitempty"` // YYYY-MM-DD, default today
}

// AllocationRequest splits the collected cash. Hand + bank must equal the
// period's collected total.
type AllocationRequest struct {
	Hand string `json:"hand"`
	Bank string `json:"bank"`
}

// ClosePeriodResponse returns both sides of the atomic close-then-open.
type ClosePeriodResponse struct {
	Closed    PeriodDTO `json:"closed"`
	Successor PeriodDTO `json:"successor"`
}

// =============================================================================
// ENTRY TYPES
// =============================================================================

// EntryDTO represents a member's contribution entry.
type EntryDTO struct {
	ID               string `json:"id"`
	PeriodID         string `json:"period_id"`
	MemberID         string `json:"member_id"`
	ContributionDue  string `json:"contribution_due"`
	InterestDue      string `json:"interest_due"`
	LateFineDue      string `json:"late_fine_due"`
	DaysLate         int    `json:"days_late"`
	ContributionPaid string `json:"contribution_paid"`
	InterestPaid     string `json:"interest_paid"`
	LateFinePaid     string `json:"late_fine_paid"`
	MinimumDue       string `json:"minimum_due"`
	TotalPaid        string `json:"total_paid"`
	Remaining        string `json:"remaining"`
	Status           string `json:"status"`
	PaidAt           string `json:"paid_at,omitempty"`
}

// RecordPaymentRequest applies a payment to an entry, split by component.
type RecordPaymentRequest struct {
	Contribution string `json:"contribution,omitempty"`
	Interest     string `json:"interest,omitempty"`
	LateFine     string `json:"late_fine,omitempty"`
	PaidAt       string `json:"paid_at,omitempty"` // YYYY-MM-DD, default today
}

// RecomputeRequest triggers a fine recompute for the open period.
type RecomputeRequest struct {
	AsOf string `json:"as_of,omitempty"` // YYYY-MM-DD, default today
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// AuditDTO represents an invariant-repair audit record.
type AuditDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	GroupID   string         `json:"group_id"`
	Action    string         `json:"action"`
	Detail    string         `json:"detail"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toGroupDTO(g contribution.Group) GroupDTO {
	return GroupDTO{
		ID:                  string(g.ID),
		Name:                g.Name,
		Frequency:           string(g.Schedule.Frequency),
		MonthlyContribution: g.MonthlyContribution.String(),
		InterestRate:        g.InterestRate.String(),
		CashInHand:          g.CashInHand.String(),
		CashInBank:          g.CashInBank.String(),
		CreatedAt:           g.CreatedAt.String(),
	}
}

func toPeriodDTO(p contribution.Period) PeriodDTO {
	dto := PeriodDTO{
		ID:              string(p.ID),
		GroupID:         string(p.GroupID),
		Sequence:        p.Sequence,
		Status:          string(p.Status),
		StartDate:       p.StartDate.String(),
		DueDate:         p.DueDate.String(),
		StandingAtStart: p.StandingAtStart.String(),
	}
	if !p.IsOpen() {
		dto.ClosedAt = p.ClosedAt.String()
		dto.StandingAtEnd = p.StandingAtEnd.String()
		dto.MembersPresent = p.MembersPresent
		dto.TotalCollected = p.TotalCollected.String()
		dto.InterestCollected = p.InterestCollected.String()
		dto.LateFinesCollected = p.LateFinesCollected.String()
		dto.NewContributions = p.NewContributions.String()
		dto.CarryForward = p.CarryForward.String()
	}
	return dto
}

func toEntryDTO(e contribution.MemberContribution) EntryDTO {
	dto := EntryDTO{
		ID:               string(e.ID),
		PeriodID:         string(e.PeriodID),
		MemberID:         string(e.MemberID),
		ContributionDue:  e.ContributionDue.String(),
		InterestDue:      e.InterestDue.String(),
		LateFineDue:      e.LateFineDue.String(),
		DaysLate:         e.DaysLate,
		ContributionPaid: e.ContributionPaid.String(),
		InterestPaid:     e.InterestPaid.String(),
		LateFinePaid:     e.LateFinePaid.String(),
		MinimumDue:       e.MinimumDue().String(),
		TotalPaid:        e.TotalPaid().String(),
		Remaining:        e.Remaining().String(),
		Status:           string(e.Status),
	}
	if !e.PaidAt.IsZero() {
		dto.PaidAt = e.PaidAt.String()
	}
	return dto
}

func toEntryDTOs(entries []contribution.MemberContribution) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSummaryDTO(groupID contribution.GroupID, s engine.StandingSnapshot) SummaryDTO {
	return SummaryDTO{
		GroupID:        string(groupID),
		CashTotal:      s.CashTotal.String(),
		LoanAssets:     s.LoanAssets.String(),
		ReserveFunds:   s.ReserveFunds.String(),
		TotalStanding:  s.TotalStanding.String(),
		PerMemberShare: s.PerMemberShare.String(),
	}
}

func toAuditDTO(e contribution.AuditEntry) AuditDTO {
	return AuditDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp.String(),
		GroupID:   string(e.GroupID),
		Action:    string(e.Action),
		Detail:    e.Detail,
		Payload:   e.Payload,
	}
}
