package pool

import "errors"

var (
	// ErrNilState is returned when the engine is used before its state,
	// token ledger or price source have been wired.
	ErrNilState = errors.New("pool: state not configured")
	// ErrNotInitialised is returned when the settings singleton has not been
	// written yet.
	ErrNotInitialised = errors.New("pool: settings not initialised")
	// ErrAlreadyInitialised is returned by Initialize on repeat calls.
	ErrAlreadyInitialised = errors.New("pool: settings already initialised")
	// ErrInvalidSettings is returned when Initialize is handed an unusable
	// settings record.
	ErrInvalidSettings = errors.New("pool: invalid settings")

	// Configuration errors.
	ErrCollateralNotFound   = errors.New("pool: collateral not found")
	ErrCollateralExists     = errors.New("pool: collateral already registered")
	ErrCollateralDisabled   = errors.New("pool: collateral disabled")
	ErrMintPaused           = errors.New("pool: minting paused for collateral")
	ErrRedeemPaused         = errors.New("pool: redemption paused for collateral")
	ErrBorrowPaused         = errors.New("pool: borrowing paused for collateral")
	ErrZeroAddress          = errors.New("pool: zero address")
	ErrInvalidToggle        = errors.New("pool: unknown toggle selector")
	ErrDecimalsUnsupported  = errors.New("pool: token decimals exceed 18")
	ErrInvalidRatio         = errors.New("pool: collateral ratio above 100%")
	ErrFeeTooHigh           = errors.New("pool: fee above 100%")
	ErrCollateralPriceUnset = errors.New("pool: collateral price not refreshed")

	// Economic guard errors.
	ErrDollarPriceTooLow          = errors.New("pool: dollar price below mint threshold")
	ErrDollarPriceTooHigh         = errors.New("pool: dollar price above redeem threshold")
	ErrDollarSlippage             = errors.New("pool: dollar amount below minimum out")
	ErrCollateralSlippage         = errors.New("pool: collateral amount outside caller bound")
	ErrGovernanceSlippage         = errors.New("pool: governance amount outside caller bound")
	ErrPoolCeilingExceeded        = errors.New("pool: collateral pool ceiling exceeded")
	ErrInsufficientPoolCollateral = errors.New("pool: insufficient free collateral")
	ErrInsufficientFunds          = errors.New("pool: caller balance below required amount")

	// Timing errors.
	ErrRedemptionDelay = errors.New("pool: redemption delay not elapsed")

	// Authorization errors.
	ErrUnauthorized        = errors.New("pool: caller is not the owner")
	ErrAmoMinterNotEnabled = errors.New("pool: caller is not an enabled amo minter")

	// ErrInvalidAmount is returned for nil or non-positive token amounts.
	ErrInvalidAmount = errors.New("pool: amount must be positive")
)
