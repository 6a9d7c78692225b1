package engine

import (
	"context"
	"fmt"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/store"
)

// record appends the trade, one leg per participant and the two cash
// journal entries. Everything shares the trade's ExecutedAt.
func (m *Matcher) record(ctx context.Context, tx store.Tx, trade *domain.Trade) error {
	if err := tx.Trades().Save(ctx, trade); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}

	buyLeg, sellLeg := trade.Legs()
	if err := tx.Trades().SaveLeg(ctx, buyLeg); err != nil {
		return fmt.Errorf("save buy leg: %w", err)
	}
	if err := tx.Trades().SaveLeg(ctx, sellLeg); err != nil {
		return fmt.Errorf("save sell leg: %w", err)
	}

	value := trade.Value()
	entries := []*domain.CashEntry{
		{
			EntryID:   m.newID(),
			UserID:    trade.BuyerID,
			Direction: domain.EntryDebit,
			Amount:    value,
			Reason:    domain.ReasonBuy,
			Symbol:    trade.Symbol,
			OrderID:   trade.BuyOrderID,
			TradeID:   trade.TradeID,
			CreatedAt: trade.ExecutedAt,
		},
		{
			EntryID:   m.newID(),
			UserID:    trade.SellerID,
			Direction: domain.EntryCredit,
			Amount:    value,
			Reason:    domain.ReasonSell,
			Symbol:    trade.Symbol,
			OrderID:   trade.SellOrderID,
			TradeID:   trade.TradeID,
			CreatedAt: trade.ExecutedAt,
		},
	}
	for _, e := range entries {
		if err := tx.Journal().Append(ctx, e); err != nil {
			return fmt.Errorf("append cash entry: %w", err)
		}
	}
	return nil
}
