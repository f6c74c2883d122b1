package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/billing/internal/shared"
)

// CreateAccountInput is the validated form of a create-account request.
type CreateAccountInput struct {
	StoreID        int64           `json:"storeId" validate:"required,gt=0"`
	AccountName    string          `json:"accountName" validate:"required,max=100"`
	AccountType    AccountType     `json:"accountType" validate:"required,oneof=PREPAID POSTPAID CREDIT"`
	InitialBalance decimal.Decimal `json:"initialBalance" validate:"gte=0"`
	CreditLimit    decimal.Decimal `json:"creditLimit" validate:"gte=0"`
	Currency       string          `json:"currency" validate:"required,currency"`
	Status         AccountStatus   `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE PENDING SUSPENDED"`
}

// LedgerService owns billing account balances, limits and status.
type LedgerService struct {
	repo Repository
	deps deps
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(repo Repository, cfg Config) *LedgerService {
	return &LedgerService{repo: repo, deps: newDeps(cfg)}
}

// CreateAccount opens a billing account for an existing store.
func (s *LedgerService) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	in.AccountName = strings.TrimSpace(in.AccountName)
	in.Currency = strings.TrimSpace(in.Currency)
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.Status == "" {
		in.Status = AccountStatusPending
	}
	fields := fieldErrors{}
	fields.checkMoney("initialBalance", in.InitialBalance)
	fields.checkMoney("creditLimit", in.CreditLimit)
	if err := validateStruct(in, fields); err != nil {
		return Account{}, err
	}

	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.StoreExists(ctx, in.StoreID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: id %d", ErrStoreNotFound, in.StoreID)
		}
		created, err = tx.InsertAccount(ctx, Account{
			StoreID:     in.StoreID,
			AccountName: in.AccountName,
			AccountType: in.AccountType,
			Balance:     in.InitialBalance,
			CreditLimit: in.CreditLimit,
			Currency:    in.Currency,
			Status:      in.Status,
		})
		if err != nil {
			return err
		}
		return audit(ctx, tx, "billing.account.create", "billing_account", created.ID, map[string]any{
			"store_id": in.StoreID,
			"type":     string(in.AccountType),
		})
	})
	return created, err
}

// AdjustBalance adds delta, which may be negative, to the account balance.
func (s *LedgerService) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (Account, error) {
	fields := fieldErrors{}
	fields.checkMoney("amount", delta)
	if err := fields.err(); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.AdjustAccountBalance(ctx, id, delta)
		if err != nil {
			return err
		}
		return audit(ctx, tx, "billing.account.adjust_balance", "billing_account", id, map[string]any{
			"delta":   delta.String(),
			"balance": updated.Balance.String(),
		})
	})
	return updated, err
}

// SetCreditLimit replaces the credit limit.
func (s *LedgerService) SetCreditLimit(ctx context.Context, id int64, limit decimal.Decimal) (Account, error) {
	fields := fieldErrors{}
	if limit.IsNegative() {
		fields.add("creditLimit", "must be greater than or equal to 0")
	}
	fields.checkMoney("creditLimit", limit)
	if err := fields.err(); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateAccountCreditLimit(ctx, id, limit)
		if err != nil {
			return err
		}
		return audit(ctx, tx, "billing.account.credit_limit", "billing_account", id, map[string]any{
			"credit_limit": limit.String(),
		})
	})
	return updated, err
}

// SetStatus replaces the account status. Any status may follow any other.
func (s *LedgerService) SetStatus(ctx context.Context, id int64, status AccountStatus) (Account, error) {
	if !status.Valid() {
		return Account{}, shared.NewValidationError(map[string]string{
			"status": "must be one of ACTIVE INACTIVE PENDING SUSPENDED",
		})
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateAccountStatus(ctx, id, status)
		if err != nil {
			return err
		}
		return audit(ctx, tx, "billing.account.status", "billing_account", id, map[string]any{
			"status": string(status),
		})
	})
	return updated, err
}

// DeleteAccount removes an account that has no invoices.
func (s *LedgerService) DeleteAccount(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountInvoicesByAccount(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrAccountHasInvoices
		}
		if err := tx.DeleteAccount(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, "billing.account.delete", "billing_account", id, nil)
	})
}

// GetAccount returns one account.
func (s *LedgerService) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// ListAccounts returns a filtered page of accounts and the total match count.
func (s *LedgerService) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, int, error) {
	return s.repo.ListAccounts(ctx, filter)
}

// AccountsByStore lists every account owned by a store.
func (s *LedgerService) AccountsByStore(ctx context.Context, storeID int64) ([]Account, error) {
	accounts, _, err := s.repo.ListAccounts(ctx, AccountFilter{StoreID: storeID, Size: -1})
	return accounts, err
}

// AccountsOverCreditLimit lists credit accounts whose balance exceeds their limit.
func (s *LedgerService) AccountsOverCreditLimit(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccountsOverCreditLimit(ctx)
}

// AccountsBelowThreshold lists accounts whose balance is under threshold.
func (s *LedgerService) AccountsBelowThreshold(ctx context.Context, threshold decimal.Decimal) ([]Account, error) {
	return s.repo.ListAccountsBelowThreshold(ctx, threshold)
}

// CountAccountsByStore counts the accounts a store owns.
func (s *LedgerService) CountAccountsByStore(ctx context.Context, storeID int64) (int, error) {
	return s.repo.CountAccountsByStore(ctx, storeID)
}
