package engine

import (
	"errors"

	"github.com/atmx/settlement-engine/internal/claim"
	"github.com/atmx/settlement-engine/internal/contract"
	"github.com/atmx/settlement-engine/internal/limit"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/settlement"
	"github.com/atmx/settlement-engine/internal/stake"
	"github.com/atmx/settlement-engine/internal/vault"
)

var (
	// ErrNoCaller is returned when a mutation arrives without a caller
	// identity.
	ErrNoCaller = errors.New("engine: caller identity required")

	// ErrCustodyCaller is returned when the custody account itself tries
	// to act. Custody balances move only through engine operations.
	ErrCustodyCaller = errors.New("engine: custody account cannot act as caller")

	// ErrInvalidAccount is returned for a zero receiver or owner address.
	ErrInvalidAccount = errors.New("engine: invalid account")

	// ErrJournal is returned when the journal append fails. No state has
	// changed when it is returned.
	ErrJournal = errors.New("engine: journal unavailable")

	// ErrInconsistentJournal is returned when a journal entry cannot be
	// applied, which means the stored history diverged from the rules.
	ErrInconsistentJournal = errors.New("engine: inconsistent journal")
)

// Class is the category of a failure.
type Class string

const (
	ClassAuthorization Class = "Authorization"
	ClassValidation    Class = "Validation"
	ClassState         Class = "State"
	ClassResource      Class = "Resource"
	ClassExternal      Class = "External"
	ClassInternal      Class = "Internal"
)

type errorCode struct {
	err   error
	code  string
	class Class
}

// errorCodes is matched in order; the first errors.Is hit wins.
var errorCodes = []errorCode{
	{registry.ErrUnauthorized, "Unauthorized", ClassAuthorization},
	{vault.ErrNotOwner, "Unauthorized", ClassAuthorization},
	{ErrNoCaller, "Unauthorized", ClassAuthorization},
	{ErrCustodyCaller, "Unauthorized", ClassAuthorization},

	{registry.ErrInvalidEndTime, "InvalidEndTime", ClassValidation},
	{registry.ErrInvalidThresholds, "InvalidThresholds", ClassValidation},
	{stake.ErrInvalidThreshold, "InvalidThreshold", ClassValidation},
	{contract.ErrInvalidTemperature, "InvalidThreshold", ClassValidation},
	{contract.ErrInvalidTicker, "InvalidThreshold", ClassValidation},
	{vault.ErrInvalidAmount, "InvalidAmount", ClassValidation},
	{registry.ErrInvalidCityID, "InvalidCityID", ClassValidation},
	{contract.ErrInvalidCityID, "InvalidCityID", ClassValidation},
	{ErrInvalidAccount, "InvalidAccount", ClassValidation},

	{registry.ErrDrawNotFound, "DrawNotFound", ClassState},
	{stake.ErrDrawClosed, "DrawClosed", ClassState},
	{registry.ErrDrawAlreadySettled, "DrawAlreadySettled", ClassState},
	{settlement.ErrDrawNotEnded, "DrawNotEnded", ClassState},
	{claim.ErrDrawNotSettled, "DrawNotSettled", ClassState},
	{claim.ErrAlreadyClaimed, "AlreadyClaimed", ClassState},
	{claim.ErrNoWinningStake, "NoWinningStake", ClassState},
	{claim.ErrPotNotRollable, "PotNotRollable", ClassState},
	{vault.ErrCorruptedVaultState, "CorruptedVaultState", ClassState},

	{stake.ErrInsufficientTicketBalance, "InsufficientTicketBalance", ClassResource},
	{vault.ErrInsufficientBalance, "InsufficientBalance", ClassResource},
	{vault.ErrInsufficientAssets, "InsufficientBalance", ClassResource},
	{limit.ErrPerThresholdLimitExceeded, "StakeLimitExceeded", ClassResource},
	{limit.ErrPerDrawLimitExceeded, "StakeLimitExceeded", ClassResource},

	{settlement.ErrOracleDataUnavailable, "OracleDataUnavailable", ClassExternal},

	{ErrJournal, "JournalUnavailable", ClassInternal},
	{ErrInconsistentJournal, "InconsistentJournal", ClassInternal},
}

// Code returns the failure name for err, "Internal" for unknown errors and
// "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// ErrorClass returns the category of err.
func ErrorClass(err error) Class {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}
