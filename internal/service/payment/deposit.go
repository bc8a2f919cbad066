package payment

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
)

const minPollInterval = 5 * time.Second

// Service issues deposit invoices and credits them once the processor
// reports them paid. Crediting is idempotent per invoice.
type Service struct {
	db      *gorm.DB
	gateway Gateway
	poll    time.Duration
}

func NewService(db *gorm.DB, gateway Gateway, poll time.Duration) *Service {
	if poll < minPollInterval {
		poll = minPollInterval
	}
	return &Service{db: db, gateway: gateway, poll: poll}
}

// CreateDeposit asks the processor for a payment URL and records the pending
// invoice.
func (s *Service) CreateDeposit(ctx context.Context, accountID, amount int64) (*model.Invoice, error) {
	if amount <= 0 {
		return nil, appErr.ErrInvalidAmount
	}
	if s.gateway == nil {
		return nil, appErr.ErrGatewayDisabled
	}

	payload := fmt.Sprintf("deposit:%d:%d", accountID, time.Now().UnixNano())
	info, err := s.gateway.CreateInvoice(ctx, accountID, amount, payload)
	if err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		AccountID:  accountID,
		ExternalID: info.ExternalID,
		Asset:      info.Asset,
		Amount:     amount,
		Status:     model.InvoiceStatusActive,
		PayURL:     info.PayURL,
		Payload:    payload,
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice returns an invoice owned by the account.
func (s *Service) GetInvoice(ctx context.Context, accountID, invoiceID int64) (*model.Invoice, error) {
	var inv model.Invoice
	if err := s.db.WithContext(ctx).First(&inv, invoiceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, appErr.ErrInvoiceNotFound
		}
		return nil, err
	}
	if inv.AccountID != accountID {
		return nil, appErr.ErrInvoiceNotFound
	}
	return &inv, nil
}

// Watch polls the processor for invoice status until the context ends.
func (s *Service) Watch(ctx context.Context) {
	if s.gateway == nil {
		logger.Log.Info("payment gateway disabled, invoice watcher not started")
		return
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				logger.Log.Warn("invoice poll failed", zap.Error(err))
			}
		}
	}
}

// pollOnce reconciles every active invoice against the processor.
func (s *Service) pollOnce(ctx context.Context) error {
	var active []model.Invoice
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.InvoiceStatusActive).
		Limit(100).
		Find(&active).Error; err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	ids := make([]string, len(active))
	byExternal := make(map[string]*model.Invoice, len(active))
	for i := range active {
		ids[i] = active[i].ExternalID
		byExternal[active[i].ExternalID] = &active[i]
	}

	infos, err := s.gateway.GetInvoices(ctx, ids)
	if err != nil {
		return err
	}

	for _, info := range infos {
		inv, ok := byExternal[info.ExternalID]
		if !ok {
			continue
		}
		switch info.Status {
		case "paid":
			if err := s.CreditPaid(ctx, inv); err != nil {
				logger.Log.Error("invoice credit failed",
					zap.String("externalID", inv.ExternalID), zap.Error(err))
			}
		case "expired":
			if err := s.db.WithContext(ctx).Model(inv).
				Update("status", model.InvoiceStatusExpired).Error; err != nil {
				logger.Log.Error("invoice expire failed",
					zap.String("externalID", inv.ExternalID), zap.Error(err))
			}
		}
	}
	return nil
}

// CreditPaid credits a paid invoice and flips its status in one transaction.
// The ledger entry keyed on the external invoice id is the idempotency
// guard: re-observing a paid invoice credits nothing.
func (s *Service) CreditPaid(ctx context.Context, inv *model.Invoice) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		correlation := fmt.Sprintf("invoice:%s", inv.ExternalID)
		exists, err := ledger.EntryExists(tx, model.ReasonDeposit, correlation)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := ledger.CreditTx(tx, inv.AccountID, inv.Amount, model.ReasonDeposit, correlation); err != nil {
				return err
			}
		}
		return tx.Model(&model.Invoice{}).
			Where("id = ?", inv.ID).
			Update("status", model.InvoiceStatusPaid).Error
	})
}
