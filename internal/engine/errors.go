package engine

import "errors"

// Parameter errors.
var (
	ErrCategoryTooLong            = errors.New("engine: category must be 1 to 20 bytes")
	ErrInvalidParameterOfPosition = errors.New("engine: illegal position parameter")
	ErrInvalidAmount              = errors.New("engine: amount must be positive")
)

// State errors.
var (
	ErrMarketPauses          = errors.New("engine: market pauses, opening not allowed")
	ErrMarketFrozen          = errors.New("engine: market frozen, closing not allowed")
	ErrPositionStatusInvalid = errors.New("engine: position status invalid")
)

// Authorization errors.
var (
	ErrNoPermission = errors.New("engine: no permission")
	ErrUserMismatch = errors.New("engine: user transaction account mismatch")
)

// Risk-control errors. Their evaluation order on open is a contract:
// exposure, margin ratio, fund size, fund pool.
var (
	ErrRiskControlBlockingExposure = errors.New("engine: risk control blocking, exposure exceeds liquidity limit")
	ErrInsufficientMargin          = errors.New("engine: insufficient margin, below burst rate")
	ErrRiskControlBlockingFundSize = errors.New("engine: risk control blocking, position size exceeds liquidity limit")
	ErrRiskControlBlockingFundPool = errors.New("engine: risk control blocking, fund pool exceeds liquidity limit")
)

// Resource errors.
var (
	ErrInsufficientBalanceForUser = errors.New("engine: insufficient balance for user")
	ErrInsufficientVaultBalance   = errors.New("engine: insufficient vault balance")
)

// Integrity errors.
var (
	ErrIllegalMarketAccount         = errors.New("engine: illegal market account")
	ErrInvalidOracleAccount         = errors.New("engine: invalid oracle account")
	ErrMarketNotSupportOpenPosition = errors.New("engine: market does not support opening this position")
	ErrAlreadyInitialized           = errors.New("engine: account already initialized")
)
