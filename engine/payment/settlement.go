package payment

import (
	"errors"
	"fmt"

	"github.com/cardmart/cardmart/engine/core"
)

// Method names the requested settlement split.
type Method string

const (
	// MethodWallet settles the full total from the internal balance
	MethodWallet Method = "wallet"
	// MethodProcessor charges the full total externally
	MethodProcessor Method = "processor"
	// MethodSplit drains the wallet first and charges the remainder
	MethodSplit Method = "split"
)

// IsValid checks whether the method is one of the known settlement modes.
func (m Method) IsValid() bool {
	switch m {
	case MethodWallet, MethodProcessor, MethodSplit:
		return true
	default:
		return false
	}
}

// UsesWallet reports whether the method can touch the internal balance.
func (m Method) UsesWallet() bool {
	return m == MethodWallet || m == MethodSplit
}

// ErrInsufficientFunds is returned when a wallet-only settlement finds the
// balance short of the total.
var ErrInsufficientFunds = errors.New("insufficient funds for wallet payment")

// Plan is a deterministic settlement split. WalletDebit + ProcessorCharge
// always equals the total it was computed from.
type Plan struct {
	WalletDebit     core.Money
	ProcessorCharge core.Money
}

// RequiresProcessor reports whether an external charge must be made. A
// zero-amount external charge is not a valid call and is skipped entirely.
func (p *Plan) RequiresProcessor() bool {
	return p.ProcessorCharge.IsPositive()
}

// ComputePlan splits a total across the wallet and the external processor
// for the requested method, given the buyer's current balance. All amounts
// are minor-unit integers.
func ComputePlan(total core.Money, method Method, balance core.Money) (*Plan, error) {
	if total <= 0 {
		return nil, fmt.Errorf("total must be positive, got %d", total)
	}
	switch method {
	case MethodWallet:
		if balance < total {
			return nil, ErrInsufficientFunds
		}
		return &Plan{WalletDebit: total}, nil
	case MethodProcessor:
		return &Plan{ProcessorCharge: total}, nil
	case MethodSplit:
		debit := balance
		if debit > total {
			debit = total
		}
		if debit < 0 {
			debit = 0
		}
		return &Plan{WalletDebit: debit, ProcessorCharge: total - debit}, nil
	default:
		return nil, fmt.Errorf("unknown payment method: %s", method)
	}
}
