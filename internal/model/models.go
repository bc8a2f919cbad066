package model

import (
	"time"

	"gorm.io/datatypes"
)

// 1. Accounts & ledger
//
// All monetary amounts are int64 minor currency units (cents). Multipliers
// are int64 hundredths (250 = 2.50x). House edges are basis points.

type Account struct {
	ID        int64  `gorm:"primaryKey"` // external user identifier
	Username  string `gorm:"size:64;index"`
	FirstName string `gorm:"size:128"`

	Balance  int64 // total funds, includes reserved
	Reserved int64 // earmarked for pending withdrawals

	ReferrerID       *int64 `gorm:"index"` // set once, immutable
	ReferralEarnings int64

	TotalBets       int
	TotalWager      int64
	WelcomeCredited bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spendable returns the portion of the balance not reserved for withdrawal.
func (a *Account) Spendable() int64 {
	return a.Balance - a.Reserved
}

// Ledger entry reason codes.
const (
	ReasonBetStake           = "bet_stake"
	ReasonBetPayout          = "bet_payout"
	ReasonDeposit            = "deposit"
	ReasonWithdrawal         = "withdrawal"
	ReasonReferralCommission = "referral_commission"
	ReasonWelcomeBonus       = "welcome_bonus"
	ReasonAdminCredit        = "admin_credit"
)

// LedgerEntry is the append-only record of a single balance mutation.
// The signed sum of entries per account equals the account balance.
type LedgerEntry struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	AccountID     int64  `gorm:"index;not null"`
	Amount        int64  // signed
	Reason        string `gorm:"size:32;index;not null"`
	CorrelationID string `gorm:"size:64;index"` // links related entries (bet id, invoice id)
	BalanceAfter  int64
	MetaJSON      datatypes.JSON
	CreatedAt     time.Time
}

// 2. Bets & rounds

const (
	BetStatusPending = "pending"
	BetStatusWon     = "won"
	BetStatusLost    = "lost"
)

type Bet struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	AccountID int64  `gorm:"index;not null"`
	Game      string `gorm:"size:32;not null"`
	Stake     int64
	EdgeBP    int64  // house edge snapshot at placement, basis points
	Status    string `gorm:"size:24;default:pending;not null"`

	MultiplierX100 int64 // payout multiplier in hundredths, 0 until resolved
	Payout         int64

	RoundID     *int64 `gorm:"index"` // crash participation
	DetailsJSON datatypes.JSON

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

const (
	RoundStatusBetting = "betting"
	RoundStatusRunning = "running"
	RoundStatusCrashed = "crashed"
	RoundStatusSettled = "settled"
)

// CrashRound holds the durable trail of one crash round. The crash point is
// written at the betting->running transition and never exposed before the
// round ends.
type CrashRound struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Status    string `gorm:"size:24;default:betting;not null"`
	CrashX100 int64
	StartedAt time.Time
	SettledAt *time.Time
}

// 3. Withdrawals & deposits

const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusRejected = "rejected"
)

type WithdrawalRequest struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	AccountID  int64 `gorm:"index;not null"`
	Amount     int64
	Status     string `gorm:"size:24;default:pending;not null"`
	ResolvedBy *int64 // admin id once resolved
	TransferID string `gorm:"size:128"`
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

const (
	InvoiceStatusActive  = "active"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusExpired = "expired"
)

type Invoice struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	AccountID  int64  `gorm:"index;not null"`
	ExternalID string `gorm:"size:128;uniqueIndex;not null"`
	Asset      string `gorm:"size:16"`
	Amount     int64
	Status     string `gorm:"size:24;default:active;not null"`
	PayURL     string
	Payload    string `gorm:"size:128"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// 4. Admin

type Admin struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`
	Status       string `gorm:"default:active;not null"` // active/disabled
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
