package projections

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
)

// ProjectionManager owns the full projection set and applies every
// envelope to each of them in the fixed, documented order: balance ->
// ledger -> approval -> synergy. The order is fixed so replay is
// observable and test-stable.
type ProjectionManager struct {
	Balance  *BalanceProjection
	Ledger   *LedgerProjection
	Approval *ApprovalProjection
	Synergy  *SynergyProjection
}

func NewProjectionManager() *ProjectionManager {
	return &ProjectionManager{
		Balance:  NewBalanceProjection(),
		Ledger:   NewLedgerProjection(),
		Approval: NewApprovalProjection(),
		Synergy:  NewSynergyProjection(),
	}
}

// Apply dispatches rec to every projection in the fixed order. A handler
// error is collected, not short-circuited, so one projection failing to
// apply an event never prevents the others from seeing it.
func (m *ProjectionManager) Apply(ctx context.Context, rec journal.Record) error {
	var errs *multierror.Error
	if err := m.Balance.Handle(ctx, rec); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("balance: %w", err))
	}
	if err := m.Ledger.Handle(ctx, rec); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("ledger: %w", err))
	}
	if err := m.Approval.Handle(ctx, rec); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("approval: %w", err))
	}
	if err := m.Synergy.Handle(ctx, rec); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("synergy: %w", err))
	}
	return errs.ErrorOrNil()
}

// Clear resets every projection to empty, as the replay engine requires
// at the start of a cold replay.
func (m *ProjectionManager) Clear() {
	m.Balance.Clear()
	m.Ledger.Clear()
	m.Approval.Clear()
	m.Synergy.Clear()
}
