package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/ledger"
	"github.com/efreitasn/papertrade/internal/store"
)

// OpenAccountRequest represents the input for account opening. A nil
// InitialCash opens the account with the configured opening balance.
type OpenAccountRequest struct {
	UserID          string
	InitialCash     *decimal.Decimal
	InitialHoldings []HoldingInput
}

// HoldingInput represents a single holding in an opening request. AvgCost
// defaults to zero.
type HoldingInput struct {
	Symbol   string
	Quantity int64
	AvgCost  decimal.Decimal
}

// Balance is a user's cash account together with every position.
type Balance struct {
	Account   *domain.Account
	Positions []*domain.Position
}

// AccountService handles account opening, deposits and the per-user read
// side.
type AccountService struct {
	store       store.Store
	symbols     *domain.SymbolRegistry
	openingCash decimal.Decimal
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(st store.Store, symbols *domain.SymbolRegistry, openingCash decimal.Decimal, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		store:       st,
		symbols:     symbols,
		openingCash: openingCash,
		logger:      logger,
		now:         time.Now,
	}
}

// Open validates the request and creates the account, its initial
// positions and the opening-balance journal entry in one transaction.
// Symbols of initial holdings become tradable.
func (s *AccountService) Open(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	if !domain.ValidUserID(req.UserID) {
		return nil, &domain.ValidationError{Message: "user_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}

	cash := s.openingCash
	if req.InitialCash != nil {
		cash = *req.InitialCash
	}
	if cash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be >= 0"}
	}
	if !domain.HasScale(cash, domain.PriceScale) {
		return nil, &domain.ValidationError{Message: "initial_cash must have at most 2 decimal places"}
	}

	seen := make(map[string]bool, len(req.InitialHoldings))
	for _, h := range req.InitialHoldings {
		if !domain.ValidSymbol(h.Symbol) {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding symbol must match ^[A-Z]{1,10}$, got %q", h.Symbol),
			}
		}
		if h.Quantity <= 0 {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding quantity must be > 0 for symbol %s", h.Symbol),
			}
		}
		if h.Quantity > domain.MaxQuantity {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding quantity must be at most %d for symbol %s", domain.MaxQuantity, h.Symbol),
			}
		}
		if h.AvgCost.IsNegative() {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding avg_cost must be >= 0 for symbol %s", h.Symbol),
			}
		}
		if seen[h.Symbol] {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("duplicate symbol in initial_holdings: %s", h.Symbol),
			}
		}
		seen[h.Symbol] = true
	}

	now := s.now()
	acct := &domain.Account{
		UserID:       req.UserID,
		CashBalance:  cash,
		ReservedCash: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, acct); err != nil {
			return err
		}
		for _, h := range req.InitialHoldings {
			pos := domain.NewPosition(req.UserID, h.Symbol)
			pos.Quantity = h.Quantity
			pos.AvgCost = domain.RoundCost(h.AvgCost)
			pos.UpdatedAt = now
			if err := tx.Positions().Save(ctx, pos); err != nil {
				return err
			}
		}
		if !cash.IsPositive() {
			return nil
		}
		return tx.Journal().Append(ctx, depositEntry(req.UserID, cash, now))
	})
	if err != nil {
		return nil, err
	}

	for symbol := range seen {
		s.symbols.Register(symbol)
	}

	s.logger.Info("account opened",
		zap.String("user_id", acct.UserID),
		zap.String("cash", cash.String()),
		zap.Int("holdings", len(req.InitialHoldings)))
	return acct, nil
}

// Deposit credits amount to the user's cash balance.
func (s *AccountService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if !domain.HasScale(amount, domain.PriceScale) {
		return nil, &domain.ValidationError{Message: "amount must have at most 2 decimal places"}
	}

	var updated *domain.Account
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		acct, err := tx.Accounts().Get(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		updated, err = ledger.Credit(acct, amount)
		if err != nil {
			return err
		}
		updated.UpdatedAt = now
		if err := tx.Accounts().Save(ctx, updated); err != nil {
			return err
		}
		return tx.Journal().Append(ctx, depositEntry(userID, amount, now))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func depositEntry(userID string, amount decimal.Decimal, at time.Time) *domain.CashEntry {
	return &domain.CashEntry{
		EntryID:   uuid.NewString(),
		UserID:    userID,
		Direction: domain.EntryCredit,
		Amount:    amount,
		Reason:    domain.ReasonDeposit,
		CreatedAt: at,
	}
}

// GetBalance returns the account and its positions.
func (s *AccountService) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{Account: acct, Positions: positions}, nil
}

// Positions returns the user's positions ordered by symbol.
func (s *AccountService) Positions(ctx context.Context, userID string) ([]*domain.Position, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListPositions(ctx, userID)
}

// Trades returns the user's trade legs, oldest first.
func (s *AccountService) Trades(ctx context.Context, userID string) ([]*domain.TradeLeg, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListLegs(ctx, userID)
}

// Journal returns the user's cash entries, oldest first.
func (s *AccountService) Journal(ctx context.Context, userID string) ([]*domain.CashEntry, error) {
	if _, err := s.store.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListJournal(ctx, userID)
}
