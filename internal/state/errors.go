package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by the engine carry the parameters a caller needs to act
// on the rejection. They are matched with errors.As.

// NilOrderError rejects an order commitment with a zero size delta.
type NilOrderError struct{}

func (e *NilOrderError) Error() string { return "order size delta is zero" }

// OrderNotFoundError reports a settlement or cancellation attempt for an
// account with no pending order on the market.
type OrderNotFoundError struct {
	AccountID uuid.UUID
	MarketID  string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("no pending order for account %s on market %s", e.AccountID, e.MarketID)
}

// OrderPendingError reports that an order is already pending and still
// inside its settlement window.
type OrderPendingError struct {
	AccountID uuid.UUID
	MarketID  string
}

func (e *OrderPendingError) Error() string {
	return fmt.Sprintf("order already pending for account %s on market %s", e.AccountID, e.MarketID)
}

// OrderTooYoungError reports a settlement attempt before minOrderAge.
type OrderTooYoungError struct {
	Age    time.Duration
	MinAge time.Duration
}

func (e *OrderTooYoungError) Error() string {
	return fmt.Sprintf("order age %s below minimum %s", e.Age, e.MinAge)
}

// OrderStaleError reports a settlement attempt after maxOrderAge.
type OrderStaleError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *OrderStaleError) Error() string {
	return fmt.Sprintf("order age %s exceeds maximum %s", e.Age, e.MaxAge)
}

// InvalidPriceError reports a settlement price that is unusable: outside the
// publish-time window or not a positive number.
type InvalidPriceError struct {
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid settlement price: %s", e.Reason)
}

// PriceImpactExceededError reports a fill price beyond the order's limit.
type PriceImpactExceededError struct {
	FillPrice  decimal.Decimal
	LimitPrice decimal.Decimal
}

func (e *PriceImpactExceededError) Error() string {
	return fmt.Sprintf("fill price %s exceeds limit price %s", e.FillPrice, e.LimitPrice)
}

// InsufficientMarginError reports an operation that would leave the account
// below its initial margin requirement.
type InsufficientMarginError struct {
	Equity   decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientMarginError) Error() string {
	return fmt.Sprintf("equity %s below required margin %s", e.Equity, e.Required)
}

// MaxMarketSizeExceededError reports a trade that would push open interest
// or skew beyond the market's configured cap.
type MaxMarketSizeExceededError struct {
	Size    decimal.Decimal
	MaxSize decimal.Decimal
}

func (e *MaxMarketSizeExceededError) Error() string {
	return fmt.Sprintf("resulting size %s exceeds market cap %s", e.Size, e.MaxSize)
}

// InsufficientCollateralError reports a withdrawal larger than the account's
// balance in that collateral.
type InsufficientCollateralError struct {
	Collateral string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("insufficient %s collateral: available %s, requested %s",
		e.Collateral, e.Available, e.Requested)
}

// MaxCollateralExceededError reports a deposit that would push the
// system-wide total for a collateral above its configured cap.
type MaxCollateralExceededError struct {
	Collateral string
	Requested  decimal.Decimal
	Max        decimal.Decimal
}

func (e *MaxCollateralExceededError) Error() string {
	return fmt.Sprintf("deposit of %s %s exceeds max allowable %s",
		e.Requested, e.Collateral, e.Max)
}

// UnsupportedCollateralError reports a transfer in a collateral type absent
// from the current configuration.
type UnsupportedCollateralError struct {
	Collateral string
}

func (e *UnsupportedCollateralError) Error() string {
	return fmt.Sprintf("unsupported collateral type %q", e.Collateral)
}

// ZeroAddressError reports the null collateral marker where a real
// collateral type is required.
type ZeroAddressError struct{}

func (e *ZeroAddressError) Error() string { return "collateral type is the zero address" }

// UnauthorizedError reports an owner-only operation attempted by another
// caller.
type UnauthorizedError struct {
	Caller uuid.UUID
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s is not the market owner", e.Caller)
}

// MarketNotFoundError reports an operation against an unknown market.
type MarketNotFoundError struct {
	MarketID string
}

func (e *MarketNotFoundError) Error() string {
	return fmt.Sprintf("market %s not found", e.MarketID)
}

// MarketExistsError reports a create for a market ID already in use.
type MarketExistsError struct {
	MarketID string
}

func (e *MarketExistsError) Error() string {
	return fmt.Sprintf("market %s already exists", e.MarketID)
}

// AccountNotFoundError reports an operation against an unknown account.
type AccountNotFoundError struct {
	AccountID uuid.UUID
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

// AccountExistsError reports a create for an account ID already in use.
type AccountExistsError struct {
	AccountID uuid.UUID
}

func (e *AccountExistsError) Error() string {
	return fmt.Sprintf("account %s already exists", e.AccountID)
}
