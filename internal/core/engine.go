package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpmarket/internal/event"
	"perpmarket/internal/observability"
	"perpmarket/internal/oracle"
	"perpmarket/internal/perpmath"
	"perpmarket/internal/state"
)

// Output is one event leaving the engine, bound for the persistence worker
// and the outbound publisher.
type Output struct {
	Envelope event.Envelope
}

// Engine is the single-writer market engine. Every mutation runs under one
// mutex, so state transitions are serial and each emitted event describes a
// consistent snapshot. Reads take the same lock; there is no torn state to
// observe.
//
// The engine never reads the wall clock directly and never fetches prices on
// its own: time comes from the injected Clock, prices from the PriceOracle
// and from the PriceUpdate presented at settlement.
type Engine struct {
	mu sync.Mutex

	owner      uuid.UUID
	clock      Clock
	oracle     oracle.PriceOracle
	settlement SettlementConfig

	markets   *state.MarketManager
	accounts  *state.AccountManager
	positions *state.PositionManager
	orders    *state.OrderManager
	margin    *state.MarginLedger
	treasury  *state.Treasury

	sequence int64

	persistChan chan<- Output
	publishChan chan<- Output
	metrics     *observability.Metrics
}

func NewEngine(
	owner uuid.UUID,
	priceOracle oracle.PriceOracle,
	settlement SettlementConfig,
	clock Clock,
	persistChan, publishChan chan<- Output,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		owner:       owner,
		clock:       clock,
		oracle:      priceOracle,
		settlement:  settlement,
		markets:     state.NewMarketManager(),
		accounts:    state.NewAccountManager(),
		positions:   state.NewPositionManager(),
		orders:      state.NewOrderManager(),
		margin:      state.NewMarginLedger(),
		treasury:    state.NewTreasury(),
		persistChan: persistChan,
		publishChan: publishChan,
		metrics:     metrics,
	}
}

func (e *Engine) Owner() uuid.UUID { return e.owner }

// ResumeSequence advances the event sequence past the last persisted
// sequence so a restarted engine never reissues a taken number. Call before
// processing any commands.
func (e *Engine) ResumeSequence(last int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last > e.sequence {
		e.sequence = last
	}
}

// --- Administration ---

// CreateAccount registers a trading account.
func (e *Engine) CreateAccount(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.accounts.Create(id); err != nil {
		return e.rejected("create_account", "exists", err)
	}
	e.emit("", &event.AccountCreated{AccountID: id})
	e.applied("create_account")
	return nil
}

// CreateMarket registers a new market. Owner only.
func (e *Engine) CreateMarket(caller uuid.UUID, marketID string, cfg state.MarketConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.rejected("create_market", "unauthorized", &state.UnauthorizedError{Caller: caller})
	}
	if _, err := e.markets.Create(marketID, cfg, e.clock.Now()); err != nil {
		return e.rejected("create_market", "exists", err)
	}
	e.emit(marketID, &event.MarketCreated{MarketID: marketID, By: caller})
	e.applied("create_market")
	return nil
}

// SetMarketConfig replaces a market's parameters. Owner only. Funding is
// advanced first so rate accrued under the old velocity is preserved, then
// the velocity is rederived under the new parameters.
func (e *Engine) SetMarketConfig(caller uuid.UUID, marketID string, cfg state.MarketConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.rejected("set_market_config", "unauthorized", &state.UnauthorizedError{Caller: caller})
	}
	market, err := e.markets.Get(marketID)
	if err != nil {
		return e.rejected("set_market_config", "market_not_found", err)
	}

	market.AdvanceFunding(e.clock.Now())
	market.Config = cfg
	market.RecomputeFundingVelocity()

	e.emit(marketID, &event.MarketConfigured{MarketID: marketID, By: caller})
	e.applied("set_market_config")
	return nil
}

// SetSettlementConfig replaces the system settlement parameters. Owner only.
func (e *Engine) SetSettlementConfig(caller uuid.UUID, cfg SettlementConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.rejected("set_settlement_config", "unauthorized", &state.UnauthorizedError{Caller: caller})
	}
	e.settlement = cfg
	e.applied("set_settlement_config")
	return nil
}

// SetCollateralConfiguration atomically replaces the supported collateral
// set. Owner only. An empty set revokes every collateral type; existing
// balances are untouched and remain withdrawable.
func (e *Engine) SetCollateralConfiguration(caller uuid.UUID, configs []state.CollateralConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return e.rejected("set_collateral_config", "unauthorized", &state.UnauthorizedError{Caller: caller})
	}
	for _, c := range configs {
		if c.Collateral == state.CollateralZero {
			return e.rejected("set_collateral_config", "zero_address", &state.ZeroAddressError{})
		}
		if c.MaxAllowable.Sign() < 0 {
			return e.rejected("set_collateral_config", "negative_max",
				fmt.Errorf("negative max allowable for %s: %s", c.Collateral, c.MaxAllowable))
		}
	}

	e.margin.SetConfiguration(configs)
	e.emit("", &event.CollateralConfigured{By: caller, Count: len(configs)})
	e.applied("set_collateral_config")
	return nil
}

// CollateralConfiguration returns the current collateral set.
func (e *Engine) CollateralConfiguration() []state.CollateralConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.margin.Configuration()
}

// --- Margin transfers ---

// TransferTo moves collateral into (positive delta) or out of (negative
// delta) an account's margin on a market. Withdrawals run a margin check
// against the account's open position.
func (e *Engine) TransferTo(accountID uuid.UUID, marketID, collateral string, amountDelta decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.accounts.Require(accountID); err != nil {
		return e.rejected("transfer", "account_not_found", err)
	}
	market, err := e.markets.Get(marketID)
	if err != nil {
		return e.rejected("transfer", "market_not_found", err)
	}
	if collateral == state.CollateralZero {
		return e.rejected("transfer", "zero_address", &state.ZeroAddressError{})
	}
	if amountDelta.IsZero() {
		return nil
	}

	if amountDelta.Sign() > 0 {
		return e.deposit(accountID, market, collateral, amountDelta)
	}
	return e.withdraw(accountID, market, collateral, amountDelta.Neg())
}

func (e *Engine) deposit(accountID uuid.UUID, market *state.Market, collateral string, amount decimal.Decimal) error {
	cfg, ok := e.margin.Config(collateral)
	if !ok {
		return e.rejected("transfer", "unsupported_collateral", &state.UnsupportedCollateralError{Collateral: collateral})
	}
	if e.margin.SystemTotal(collateral).Add(amount).GreaterThan(cfg.MaxAllowable) {
		return e.rejected("transfer", "max_collateral", &state.MaxCollateralExceededError{
			Collateral: collateral,
			Requested:  amount,
			Max:        cfg.MaxAllowable,
		})
	}

	e.margin.Deposit(accountID, market.ID, collateral, amount)
	if collateral == state.CollateralUsd {
		e.treasury.OnUsdDeposit(market.ID, amount)
	}

	e.emit(market.ID, &event.MarginDeposit{
		From:       accountID,
		Market:     market.ID,
		Amount:     amount,
		Collateral: collateral,
	})
	e.applied("transfer")
	return nil
}

// withdraw debits collateral. Revoked collateral types remain withdrawable:
// only the balance matters here, not the configuration.
func (e *Engine) withdraw(accountID uuid.UUID, market *state.Market, collateral string, amount decimal.Decimal) error {
	available := e.margin.Balance(accountID, market.ID, collateral)
	if amount.GreaterThan(available) {
		return e.rejected("transfer", "insufficient_collateral", &state.InsufficientCollateralError{
			Collateral: collateral,
			Available:  available,
			Requested:  amount,
		})
	}

	pos := e.positions.Get(accountID, market.ID)
	if pos.IsOpen() {
		price, err := e.oracle.CurrentPrice(market.ID)
		if err != nil {
			return e.rejected("transfer", "no_price", err)
		}
		rate := market.ProjectedFundingRate(e.clock.Now())

		collateralValue, err := e.margin.CollateralValueUsd(accountID, market.ID, e.collateralPrice)
		if err != nil {
			return e.rejected("transfer", "no_price", err)
		}
		withdrawnValue, err := e.collateralValue(collateral, amount)
		if err != nil {
			return e.rejected("transfer", "no_price", err)
		}

		equity := collateralValue.Sub(withdrawnValue).Add(pos.UnrealizedPnl(price, rate))
		required := pos.Size.Abs().Mul(price).Mul(market.Config.InitialMarginRatio)
		if equity.LessThan(required) {
			return e.rejected("transfer", "insufficient_margin", &state.InsufficientMarginError{
				Equity:   equity,
				Required: required,
			})
		}
	}

	e.margin.Withdraw(accountID, market.ID, collateral, amount)
	if collateral == state.CollateralUsd {
		e.treasury.OnUsdWithdraw(market.ID, amount)
	}

	e.emit(market.ID, &event.MarginWithdraw{
		Market:     market.ID,
		To:         accountID,
		Amount:     amount,
		Collateral: collateral,
	})
	e.applied("transfer")
	return nil
}

// WithdrawAllCollateral drains every positive balance the account holds on
// the market. Rejected while a position is open.
func (e *Engine) WithdrawAllCollateral(accountID uuid.UUID, marketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.accounts.Require(accountID); err != nil {
		return e.rejected("withdraw_all", "account_not_found", err)
	}
	market, err := e.markets.Get(marketID)
	if err != nil {
		return e.rejected("withdraw_all", "market_not_found", err)
	}

	if pos := e.positions.Get(accountID, marketID); pos.IsOpen() {
		price, perr := e.oracle.CurrentPrice(marketID)
		if perr != nil {
			return e.rejected("withdraw_all", "no_price", perr)
		}
		rate := market.ProjectedFundingRate(e.clock.Now())
		return e.rejected("withdraw_all", "insufficient_margin", &state.InsufficientMarginError{
			Equity:   pos.UnrealizedPnl(price, rate),
			Required: pos.Size.Abs().Mul(price).Mul(market.Config.InitialMarginRatio),
		})
	}

	for _, bal := range e.margin.AccountBalances(accountID, marketID) {
		if bal.Amount.Sign() <= 0 {
			continue
		}
		e.margin.Withdraw(accountID, marketID, bal.Collateral, bal.Amount)
		if bal.Collateral == state.CollateralUsd {
			e.treasury.OnUsdWithdraw(marketID, bal.Amount)
		}
		e.emit(marketID, &event.MarginWithdraw{
			Market:     marketID,
			To:         accountID,
			Amount:     bal.Amount,
			Collateral: bal.Collateral,
		})
	}
	e.applied("withdraw_all")
	return nil
}

// --- Order lifecycle ---

// CommitOrder places an order into the pending state. The order is validated
// against the current oracle price; final pricing happens at settlement. A
// stale pending order is silently replaced.
func (e *Engine) CommitOrder(accountID uuid.UUID, marketID string, sizeDelta, limitPrice, keeperFeeBufferUsd decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.accounts.Require(accountID); err != nil {
		return e.rejected("commit_order", "account_not_found", err)
	}
	market, err := e.markets.Get(marketID)
	if err != nil {
		return e.rejected("commit_order", "market_not_found", err)
	}
	if sizeDelta.IsZero() {
		return e.rejected("commit_order", "nil_order", &state.NilOrderError{})
	}

	now := e.clock.Now()
	if existing := e.orders.Get(accountID, marketID); existing != nil {
		if now.Sub(existing.CommitmentTime) <= e.settlement.MaxOrderAge {
			return e.rejected("commit_order", "order_pending", &state.OrderPendingError{
				AccountID: accountID,
				MarketID:  marketID,
			})
		}
	}

	price, err := e.oracle.CurrentPrice(marketID)
	if err != nil {
		return e.rejected("commit_order", "no_price", err)
	}

	pos := e.positions.Get(accountID, marketID)
	oldSize := decimal.Zero
	if pos.IsOpen() {
		oldSize = pos.Size
	}
	newSize := oldSize.Add(sizeDelta)

	// Both open interest and skew are bounded by the market size cap.
	newMarketSize := market.Size.Sub(oldSize.Abs()).Add(newSize.Abs())
	if newMarketSize.GreaterThan(market.Config.MaxMarketSize) {
		return e.rejected("commit_order", "max_market_size", &state.MaxMarketSizeExceededError{
			Size:    newMarketSize,
			MaxSize: market.Config.MaxMarketSize,
		})
	}
	newSkew := market.Skew.Add(sizeDelta)
	if newSkew.Abs().GreaterThan(market.Config.MaxMarketSize) {
		return e.rejected("commit_order", "max_market_size", &state.MaxMarketSizeExceededError{
			Size:    newSkew.Abs(),
			MaxSize: market.Config.MaxMarketSize,
		})
	}

	fillPrice := perpmath.FillPrice(market.Skew, market.Config.SkewScale, price, sizeDelta)
	if err := checkLimitPrice(sizeDelta, fillPrice, limitPrice); err != nil {
		return e.rejected("commit_order", "price_impact", err)
	}

	rate := market.ProjectedFundingRate(now)
	if err := e.checkOrderMargin(accountID, market, pos, sizeDelta, price, fillPrice, rate, keeperFeeBufferUsd); err != nil {
		return e.rejected("commit_order", "insufficient_margin", err)
	}

	e.orders.Put(&state.PendingOrder{
		AccountID:          accountID,
		MarketID:           marketID,
		SizeDelta:          sizeDelta,
		LimitPrice:         limitPrice,
		KeeperFeeBufferUsd: keeperFeeBufferUsd,
		CommitmentTime:     now,
	})

	e.emit(marketID, &event.OrderCommitted{
		AccountID:          accountID,
		MarketID:           marketID,
		SizeDelta:          sizeDelta,
		LimitPrice:         limitPrice,
		KeeperFeeBufferUsd: keeperFeeBufferUsd,
		CommitmentTime:     now,
	})
	e.applied("commit_order")
	if e.metrics != nil {
		e.metrics.PendingOrders.Set(float64(e.orders.Count()))
	}
	return nil
}

// SettleOrder executes a pending order against an off-chain price
// attestation. All validation happens before any state moves; a rejected
// settlement leaves the order pending so a later attempt inside the window
// can still land.
func (e *Engine) SettleOrder(accountID uuid.UUID, marketID string, update oracle.PriceUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.markets.Get(marketID)
	if err != nil {
		return e.rejected("settle_order", "market_not_found", err)
	}
	order := e.orders.Get(accountID, marketID)
	if order == nil {
		return e.rejected("settle_order", "order_not_found", &state.OrderNotFoundError{
			AccountID: accountID,
			MarketID:  marketID,
		})
	}

	now := e.clock.Now()
	age := now.Sub(order.CommitmentTime)
	if age < e.settlement.MinOrderAge {
		return e.rejected("settle_order", "order_too_young", &state.OrderTooYoungError{
			Age:    age,
			MinAge: e.settlement.MinOrderAge,
		})
	}
	if age > e.settlement.MaxOrderAge {
		return e.rejected("settle_order", "order_stale", &state.OrderStaleError{
			Age:    age,
			MaxAge: e.settlement.MaxOrderAge,
		})
	}

	earliest, latest := e.settlement.PublishWindow(order.CommitmentTime)
	if update.PublishTime.Before(earliest) || update.PublishTime.After(latest) {
		return e.rejected("settle_order", "invalid_price", &state.InvalidPriceError{
			Reason: fmt.Sprintf("publish time %s outside window [%s, %s]",
				update.PublishTime.Format(time.RFC3339), earliest.Format(time.RFC3339), latest.Format(time.RFC3339)),
		})
	}
	price := update.Price
	if price.Sign() <= 0 {
		return e.rejected("settle_order", "invalid_price", &state.InvalidPriceError{
			Reason: fmt.Sprintf("non-positive price %s", price),
		})
	}

	fillPrice := perpmath.FillPrice(market.Skew, market.Config.SkewScale, price, order.SizeDelta)
	if err := checkLimitPrice(order.SizeDelta, fillPrice, order.LimitPrice); err != nil {
		return e.rejected("settle_order", "price_impact", err)
	}

	orderFee := perpmath.OrderFee(fillPrice, order.SizeDelta, market.Skew, market.Config.MakerFee, market.Config.TakerFee)
	ethPrice, err := e.oracle.NodePrice(e.settlement.EthOracleNodeID)
	if err != nil {
		return e.rejected("settle_order", "no_price", err)
	}
	keeperFee := perpmath.SettlementKeeperFee(
		e.settlement.keeperParams(e.settlement.KeeperSettlementGasUnits, ethPrice),
		order.KeeperFeeBufferUsd,
	)

	pos := e.positions.Get(accountID, marketID)
	oldSize := decimal.Zero
	oldContribution := decimal.Zero
	if pos.IsOpen() {
		oldSize = pos.Size
		oldContribution = pos.EntryDebtContribution()
	}
	newSize := oldSize.Add(order.SizeDelta)

	rate := market.ProjectedFundingRate(now)

	// Realize price and funding pnl on the entire pre-existing size at the
	// fill price; the position re-enters at fillPrice with funding reset.
	realized := pos.UnrealizedPnl(fillPrice, rate)
	usdDelta := realized.Sub(orderFee).Sub(keeperFee)

	if !newSize.IsZero() {
		collateralValue, verr := e.margin.CollateralValueUsd(accountID, marketID, e.collateralPrice)
		if verr != nil {
			return e.rejected("settle_order", "no_price", verr)
		}
		equity := collateralValue.Add(usdDelta).Add(newSize.Mul(price.Sub(fillPrice)))
		required := newSize.Abs().Mul(price).Mul(market.Config.InitialMarginRatio)
		if equity.LessThan(required) {
			// The order stays pending: a price move inside the window may
			// still allow settlement.
			return e.rejected("settle_order", "insufficient_margin", &state.InsufficientMarginError{
				Equity:   equity,
				Required: required,
			})
		}
	}

	// All checks passed. Apply in one shot.
	market.AdvanceFunding(now)
	e.margin.RealizeUsd(accountID, marketID, usdDelta)
	newPos := e.positions.ApplyFill(accountID, marketID, newSize, fillPrice, rate, orderFee)

	newContribution := decimal.Zero
	if newPos != nil {
		newContribution = newPos.EntryDebtContribution()
	}
	market.DebtCorrection = market.DebtCorrection.Add(newContribution.Sub(oldContribution))
	market.Skew = market.Skew.Add(order.SizeDelta)
	market.Size = market.Size.Sub(oldSize.Abs()).Add(newSize.Abs())
	market.RecomputeFundingVelocity()
	market.CumulativeFeesUsd = market.CumulativeFeesUsd.Add(orderFee)

	e.treasury.OnKeeperPaid(marketID, keeperFee)
	e.orders.Remove(accountID, marketID)

	e.emit(marketID, &event.OrderSettled{
		AccountID: accountID,
		MarketID:  marketID,
		FillPrice: fillPrice,
		SizeDelta: order.SizeDelta,
		Fee:       orderFee,
		KeeperFee: keeperFee,
	})
	e.applied("settle_order")
	e.recordMarketMetrics(market)
	if e.metrics != nil {
		e.metrics.PendingOrders.Set(float64(e.orders.Count()))
		e.metrics.OpenPositions.Set(float64(e.positions.Count()))
		e.metrics.OrdersSettled.WithLabelValues(marketID).Inc()
		feeF, _ := orderFee.Float64()
		e.metrics.OrderFeesUsd.WithLabelValues(marketID).Add(feeF)
		keeperF, _ := keeperFee.Float64()
		e.metrics.KeeperFeesUsd.WithLabelValues(marketID).Add(keeperF)
	}
	return nil
}

// CancelStaleOrder removes an order past its settlement window. Any party
// may call it; the committing account gets no special standing.
func (e *Engine) CancelStaleOrder(accountID uuid.UUID, marketID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order := e.orders.Get(accountID, marketID)
	if order == nil {
		return e.rejected("cancel_order", "order_not_found", &state.OrderNotFoundError{
			AccountID: accountID,
			MarketID:  marketID,
		})
	}
	if e.clock.Now().Sub(order.CommitmentTime) <= e.settlement.MaxOrderAge {
		return e.rejected("cancel_order", "order_pending", &state.OrderPendingError{
			AccountID: accountID,
			MarketID:  marketID,
		})
	}

	e.orders.Remove(accountID, marketID)
	e.emit(marketID, &event.OrderCanceled{
		AccountID: accountID,
		MarketID:  marketID,
		SizeDelta: order.SizeDelta,
	})
	e.applied("cancel_order")
	if e.metrics != nil {
		e.metrics.PendingOrders.Set(float64(e.orders.Count()))
		e.metrics.StaleOrdersCleared.WithLabelValues(marketID).Inc()
	}
	return nil
}

// --- Debt accounting ---

// ReportedDebt is the market's mark-to-market debt to its traders:
// collateral held plus the skew valued at price + funding, corrected by the
// entry-level contribution of every open position.
func (e *Engine) ReportedDebt(marketID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reportedDebtLocked(marketID)
}

func (e *Engine) reportedDebtLocked(marketID string) (decimal.Decimal, error) {
	market, err := e.markets.Get(marketID)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := e.oracle.CurrentPrice(marketID)
	if err != nil {
		return decimal.Zero, err
	}
	rate := market.ProjectedFundingRate(e.clock.Now())

	collateralValue, err := e.margin.MarketCollateralValueUsd(marketID, e.collateralPrice)
	if err != nil {
		return decimal.Zero, err
	}

	skewValue := market.Skew.Mul(price.Add(rate))
	return collateralValue.Add(skewValue).Sub(market.DebtCorrection), nil
}

// TotalDebt is the system's realized exposure: reported debt plus net USD
// issuance, minus the deposited non-USD collateral backing it.
func (e *Engine) TotalDebt(marketID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reported, err := e.reportedDebtLocked(marketID)
	if err != nil {
		return decimal.Zero, err
	}
	deposited, err := e.margin.MarketDepositedValueUsd(marketID, e.collateralPrice)
	if err != nil {
		return decimal.Zero, err
	}
	return reported.Add(e.treasury.NetIssuance(marketID)).Sub(deposited), nil
}

// --- Keeper fee quotes ---

// SettlementKeeperFee quotes the fee a keeper would earn settling an order
// with the given buffer right now.
func (e *Engine) SettlementKeeperFee(bufferUsd decimal.Decimal) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ethPrice, err := e.oracle.NodePrice(e.settlement.EthOracleNodeID)
	if err != nil {
		return decimal.Zero, err
	}
	params := e.settlement.keeperParams(e.settlement.KeeperSettlementGasUnits, ethPrice)
	return perpmath.SettlementKeeperFee(params, bufferUsd), nil
}

// FlagKeeperFee quotes the fee for flagging the account's position on the
// market for liquidation.
func (e *Engine) FlagKeeperFee(accountID uuid.UUID, marketID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.markets.Get(marketID); err != nil {
		return decimal.Zero, err
	}
	price, err := e.oracle.CurrentPrice(marketID)
	if err != nil {
		return decimal.Zero, err
	}
	ethPrice, err := e.oracle.NodePrice(e.settlement.EthOracleNodeID)
	if err != nil {
		return decimal.Zero, err
	}

	size := decimal.Zero
	if pos := e.positions.Get(accountID, marketID); pos.IsOpen() {
		size = pos.Size
	}
	params := e.settlement.keeperParams(e.settlement.KeeperFlagGasUnits, ethPrice)
	return perpmath.FlagKeeperFee(params, size, price, e.settlement.LiquidationRewardPercent), nil
}

// LiquidationKeeperFee quotes the fee for fully liquidating the account's
// position on the market.
func (e *Engine) LiquidationKeeperFee(accountID uuid.UUID, marketID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.markets.Get(marketID)
	if err != nil {
		return decimal.Zero, err
	}
	ethPrice, err := e.oracle.NodePrice(e.settlement.EthOracleNodeID)
	if err != nil {
		return decimal.Zero, err
	}

	size := decimal.Zero
	if pos := e.positions.Get(accountID, marketID); pos.IsOpen() {
		size = pos.Size
	}
	params := e.settlement.keeperParams(e.settlement.KeeperLiquidationGasUnits, ethPrice)
	return perpmath.LiquidationKeeperFee(params, size, market.Config.MaxLiquidatableCapacity), nil
}

// --- Digests ---

// MarketDigest snapshots a market at the current oracle price.
func (e *Engine) MarketDigest(marketID string) (MarketDigest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.markets.Get(marketID)
	if err != nil {
		return MarketDigest{}, err
	}
	price, err := e.oracle.CurrentPrice(marketID)
	if err != nil {
		return MarketDigest{}, err
	}
	collateralValue, err := e.margin.MarketCollateralValueUsd(marketID, e.collateralPrice)
	if err != nil {
		return MarketDigest{}, err
	}

	now := e.clock.Now()
	return MarketDigest{
		MarketID:                market.ID,
		OraclePrice:             price,
		Skew:                    market.Skew,
		Size:                    market.Size,
		FundingRate:             market.ProjectedFundingRate(now),
		FundingVelocity:         market.FundingVelocity,
		LastFundingTime:         market.LastFundingTime,
		DebtCorrection:          market.DebtCorrection,
		TotalCollateralValueUsd: collateralValue,
		CumulativeFeesUsd:       market.CumulativeFeesUsd,
	}, nil
}

// PositionDigest snapshots an account's position at the current oracle
// price, including its margin requirements and remaining margin.
func (e *Engine) PositionDigest(accountID uuid.UUID, marketID string) (PositionDigest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	market, err := e.markets.Get(marketID)
	if err != nil {
		return PositionDigest{}, err
	}
	price, err := e.oracle.CurrentPrice(marketID)
	if err != nil {
		return PositionDigest{}, err
	}
	collateralValue, err := e.margin.CollateralValueUsd(accountID, marketID, e.collateralPrice)
	if err != nil {
		return PositionDigest{}, err
	}

	digest := PositionDigest{
		AccountID:          accountID.String(),
		MarketID:           marketID,
		RemainingMarginUsd: collateralValue,
	}

	pos := e.positions.Get(accountID, marketID)
	if !pos.IsOpen() {
		return digest, nil
	}

	rate := market.ProjectedFundingRate(e.clock.Now())
	pnl := pos.UnrealizedPnl(price, rate)
	notional := pos.Size.Abs().Mul(price)

	digest.Size = pos.Size
	digest.EntryPrice = pos.EntryPrice
	digest.EntryFundingAccrued = pos.EntryFundingAccrued
	digest.NotionalValueUsd = notional
	digest.UnrealizedPnlUsd = pnl
	digest.RemainingMarginUsd = collateralValue.Add(pnl)
	digest.InitialMarginUsd = notional.Mul(market.Config.InitialMarginRatio)
	digest.MaintenanceMargin = notional.Mul(market.Config.MaintenanceMarginRatio)
	digest.AccruedFeesUsd = pos.AccruedFeesUsd
	return digest, nil
}

// --- Internal helpers ---

// checkOrderMargin simulates settling the order at the current price and
// verifies the resulting position clears its initial margin requirement.
func (e *Engine) checkOrderMargin(accountID uuid.UUID, market *state.Market, pos *state.Position, sizeDelta, price, fillPrice, rate, keeperFeeBufferUsd decimal.Decimal) error {
	oldSize := decimal.Zero
	if pos.IsOpen() {
		oldSize = pos.Size
	}
	newSize := oldSize.Add(sizeDelta)
	if newSize.IsZero() {
		return nil
	}

	orderFee := perpmath.OrderFee(fillPrice, sizeDelta, market.Skew, market.Config.MakerFee, market.Config.TakerFee)
	ethPrice, err := e.oracle.NodePrice(e.settlement.EthOracleNodeID)
	if err != nil {
		return err
	}
	keeperFee := perpmath.SettlementKeeperFee(
		e.settlement.keeperParams(e.settlement.KeeperSettlementGasUnits, ethPrice),
		keeperFeeBufferUsd,
	)

	collateralValue, err := e.margin.CollateralValueUsd(accountID, market.ID, e.collateralPrice)
	if err != nil {
		return err
	}

	realized := pos.UnrealizedPnl(fillPrice, rate)
	equity := collateralValue.
		Add(realized).
		Sub(orderFee).
		Sub(keeperFee).
		Add(newSize.Mul(price.Sub(fillPrice)))
	required := newSize.Abs().Mul(price).Mul(market.Config.InitialMarginRatio)
	if equity.LessThan(required) {
		return &state.InsufficientMarginError{Equity: equity, Required: required}
	}
	return nil
}

// checkLimitPrice enforces the order's price-impact bound: longs never fill
// above their limit, shorts never fill below it.
func checkLimitPrice(sizeDelta, fillPrice, limitPrice decimal.Decimal) error {
	if sizeDelta.Sign() > 0 && fillPrice.GreaterThan(limitPrice) {
		return &state.PriceImpactExceededError{FillPrice: fillPrice, LimitPrice: limitPrice}
	}
	if sizeDelta.Sign() < 0 && fillPrice.LessThan(limitPrice) {
		return &state.PriceImpactExceededError{FillPrice: fillPrice, LimitPrice: limitPrice}
	}
	return nil
}

// collateralPrice resolves the USD price of one collateral unit. Synthetic
// USD is always 1; everything else reads its oracle node, including the
// last-known node of a revoked type so held balances keep their value.
func (e *Engine) collateralPrice(collateral string) (decimal.Decimal, error) {
	if collateral == state.CollateralUsd {
		return decimal.NewFromInt(1), nil
	}
	node, ok := e.margin.OracleNode(collateral)
	if !ok {
		return decimal.Zero, &state.UnsupportedCollateralError{Collateral: collateral}
	}
	return e.oracle.NodePrice(node)
}

func (e *Engine) collateralValue(collateral string, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := e.collateralPrice(collateral)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(price), nil
}

// emit assigns the next sequence and fans the event out. The persist send
// blocks so no event is ever lost; the publish send drops on a full channel
// because downstream consumers can replay from the event log.
func (e *Engine) emit(marketID string, payload event.Payload) {
	e.sequence++
	out := Output{Envelope: event.Envelope{
		Sequence:  e.sequence,
		EventType: payload.Type(),
		MarketID:  marketID,
		Timestamp: e.clock.Now(),
		Payload:   payload,
	}}

	if e.persistChan != nil {
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.Sequence.Set(float64(e.sequence))
	}
}

func (e *Engine) applied(op string) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
	}
}

func (e *Engine) rejected(op, reason string, err error) error {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
	return err
}

func (e *Engine) recordMarketMetrics(market *state.Market) {
	if e.metrics == nil {
		return
	}
	skew, _ := market.Skew.Float64()
	size, _ := market.Size.Float64()
	rate, _ := market.FundingRate.Float64()
	e.metrics.MarketSkew.WithLabelValues(market.ID).Set(skew)
	e.metrics.MarketSize.WithLabelValues(market.ID).Set(size)
	e.metrics.MarketFundingRate.WithLabelValues(market.ID).Set(rate)
	if reported, err := e.reportedDebtLocked(market.ID); err == nil {
		debt, _ := reported.Float64()
		e.metrics.MarketReportedDebt.WithLabelValues(market.ID).Set(debt)
	}
}
