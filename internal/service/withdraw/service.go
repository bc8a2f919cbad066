package withdraw

import (
	"context"
	"fmt"
	"time"

	"casino-core/internal/model"
	"casino-core/internal/service/ledger"
	appErr "casino-core/pkg/errors"
	"casino-core/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transfer executes the external payout after approval. Implemented by the
// payment gateway client; the manager's contract ends at emitting the
// instruction.
type Transfer interface {
	ExecuteTransfer(ctx context.Context, accountID, amount int64, reference string) (string, error)
}

// Service manages withdrawal requests: funds are reserved at request time,
// debited on approval, released on rejection.
type Service struct {
	db       *gorm.DB
	transfer Transfer
}

func NewService(db *gorm.DB, transfer Transfer) *Service {
	return &Service{db: db, transfer: transfer}
}

// Request reserves the amount and records a pending withdrawal atomically.
// Fails without side effects when spendable funds are insufficient.
func (s *Service) Request(ctx context.Context, accountID, amount int64) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ledger.ReserveTx(tx, accountID, amount); err != nil {
			return err
		}
		req = &model.WithdrawalRequest{
			AccountID: accountID,
			Amount:    amount,
			Status:    model.WithdrawalStatusPending,
			CreatedAt: time.Now(),
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve converts the reservation into a permanent debit and emits the
// external transfer instruction. A request resolves exactly once: a second
// approve or reject fails with an invalid-state error and touches nothing.
func (s *Service) Approve(ctx context.Context, requestID, adminID int64) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockPending(tx, requestID)
		if err != nil {
			return err
		}

		correlation := fmt.Sprintf("withdrawal:%d", r.ID)
		if _, err := ledger.DebitReservedTx(tx, r.AccountID, r.Amount, correlation); err != nil {
			return err
		}

		now := time.Now()
		r.Status = model.WithdrawalStatusApproved
		r.ResolvedBy = &adminID
		r.ResolvedAt = &now
		req = r
		return tx.Save(r).Error
	})
	if err != nil {
		return nil, err
	}

	s.emitTransfer(ctx, req)
	return req, nil
}

// Reject releases the reservation; no debit happens.
func (s *Service) Reject(ctx context.Context, requestID, adminID int64) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.lockPending(tx, requestID)
		if err != nil {
			return err
		}
		if err := ledger.ReleaseTx(tx, r.AccountID, r.Amount); err != nil {
			return err
		}

		now := time.Now()
		r.Status = model.WithdrawalStatusRejected
		r.ResolvedBy = &adminID
		r.ResolvedAt = &now
		req = r
		return tx.Save(r).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]model.WithdrawalRequest, error) {
	var rows []model.WithdrawalRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", model.WithdrawalStatusPending).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

func (s *Service) lockPending(tx *gorm.DB, requestID int64) (*model.WithdrawalRequest, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var r model.WithdrawalRequest
	if err := q.First(&r, requestID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrWithdrawalNotFound
		}
		return nil, err
	}
	if r.Status != model.WithdrawalStatusPending {
		return nil, fmt.Errorf("%w: request already %s", appErr.ErrInvalidState, r.Status)
	}
	return &r, nil
}

// emitTransfer hands the payout to the external processor. The debit is
// already durable; a transport failure here is logged for operator replay,
// never rolled back.
func (s *Service) emitTransfer(ctx context.Context, req *model.WithdrawalRequest) {
	if s.transfer == nil {
		return
	}
	reference := fmt.Sprintf("withdrawal:%d", req.ID)
	transferID, err := s.transfer.ExecuteTransfer(ctx, req.AccountID, req.Amount, reference)
	if err != nil {
		logger.Log.Error("withdrawal transfer emission failed",
			zap.Int64("requestID", req.ID), zap.Error(err))
		return
	}
	req.TransferID = transferID
	if err := s.db.WithContext(ctx).Model(req).Update("transfer_id", transferID).Error; err != nil {
		logger.Log.Error("failed to record transfer id",
			zap.Int64("requestID", req.ID), zap.Error(err))
	}
}
