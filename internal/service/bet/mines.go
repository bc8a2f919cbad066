package bet

import (
	"context"
	"encoding/json"
	"fmt"

	"casino-core/internal/model"
	"casino-core/internal/service/games"
	"casino-core/internal/service/ledger"
	appErr "casino-core/pkg/errors"

	"gorm.io/gorm"
)

// MinesSession is the client-facing view of a mines bet. Mine locations stay
// server-side until the session ends.
type MinesSession struct {
	BetID          int64 `json:"betId"`
	Stake          int64 `json:"stake"`
	GridSize       int   `json:"gridSize"`
	Mines          int   `json:"mines"`
	Opened         []int `json:"opened"`
	MultiplierX100 int64 `json:"multiplierX100"`
	Busted         bool  `json:"busted"`
	Finished       bool  `json:"finished"`
	Payout         int64 `json:"payout"`
	MineCells      []int `json:"mineCells,omitempty"` // revealed only after the session ends
}

// StartMines debits the stake and opens a session. The bet stays pending
// until the player busts or cashes out.
func (s *Service) StartMines(ctx context.Context, accountID, stake int64, minesCount int) (*MinesSession, error) {
	if err := s.ValidateStake(stake); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, accountID); err != nil {
		return nil, err
	}

	state, err := games.NewMines(minesCount, s.src)
	if err != nil {
		return nil, err
	}

	var session *MinesSession
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.OpenTx(tx, accountID, games.Mines, stake, s.edgeBP(games.Mines), nil)
		if err != nil {
			return err
		}
		b.DetailsJSON = mustJSON(state)
		if err := tx.Save(b).Error; err != nil {
			return err
		}
		session = minesView(b, state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RevealMines opens one cell. A hazard settles the bet as lost in the same
// transaction; a safe cell grows the multiplier.
func (s *Service) RevealMines(ctx context.Context, accountID, betID int64, cell int) (*MinesSession, error) {
	var session *MinesSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, state, err := s.loadMinesTx(tx, accountID, betID)
		if err != nil {
			return err
		}

		hit, err := state.Reveal(cell, b.EdgeBP)
		if err != nil {
			return err
		}

		if hit {
			if err := s.SettleLossTx(tx, b); err != nil {
				return err
			}
		}
		b.DetailsJSON = mustJSON(state)
		if err := tx.Save(b).Error; err != nil {
			return err
		}
		session = minesView(b, state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CashoutMines settles a live session as won at the current multiplier.
func (s *Service) CashoutMines(ctx context.Context, accountID, betID int64) (*MinesSession, error) {
	var session *MinesSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, state, err := s.loadMinesTx(tx, accountID, betID)
		if err != nil {
			return err
		}
		if len(state.Opened) == 0 {
			return fmt.Errorf("%w: nothing revealed yet", appErr.ErrInvalidState)
		}
		if err := s.SettleWinTx(tx, b, state.MultiplierX100); err != nil {
			return err
		}
		session = minesView(b, state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// loadMinesTx fetches a live, owned mines bet. The account row lock
// serializes concurrent reveals and cash-outs on the same session.
func (s *Service) loadMinesTx(tx *gorm.DB, accountID, betID int64) (*model.Bet, *games.MinesState, error) {
	if _, err := ledger.LockAccount(tx, accountID); err != nil {
		return nil, nil, err
	}

	var b model.Bet
	if err := tx.First(&b, betID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, appErr.ErrSessionNotFound
		}
		return nil, nil, err
	}
	if b.AccountID != accountID || b.Game != string(games.Mines) {
		return nil, nil, appErr.ErrSessionNotFound
	}
	if b.Status != model.BetStatusPending {
		return nil, nil, appErr.ErrInvalidState
	}

	var state games.MinesState
	if err := json.Unmarshal(b.DetailsJSON, &state); err != nil {
		return nil, nil, err
	}
	return &b, &state, nil
}

func minesView(b *model.Bet, state *games.MinesState) *MinesSession {
	v := &MinesSession{
		BetID:          b.ID,
		Stake:          b.Stake,
		GridSize:       state.GridSize,
		Mines:          state.Mines,
		Opened:         state.Opened,
		MultiplierX100: state.MultiplierX100,
		Busted:         b.Status == model.BetStatusLost,
		Finished:       b.Status != model.BetStatusPending,
		Payout:         b.Payout,
	}
	if v.Finished {
		v.MineCells = state.MineCells
	}
	return v
}
