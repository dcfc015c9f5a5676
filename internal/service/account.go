package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

type accountRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Save(ctx context.Context, a *domain.Account) error
	Delete(ctx context.Context, id int64) error
}

type AccountService struct {
	accounts accountRepo
	logger   *slog.Logger
}

func NewAccountService(accounts accountRepo, logger *slog.Logger) *AccountService {
	return &AccountService{accounts: accounts, logger: logger}
}

func (s *AccountService) CreateAccount(ctx context.Context, kind domain.AccountKind, balance domain.Money, ownerIDs []int64) (*domain.Account, error) {
	account, err := domain.NewAccount(kind, balance, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	s.logger.Info("account created",
		"account_id", account.ID,
		"kind", account.Kind,
		"balance", account.Balance.String(),
	)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

// AccountUpdate carries an administrative change. Nil fields are left as
// they are.
type AccountUpdate struct {
	Balance  *domain.Money
	OwnerIDs []int64
}

// UpdateAccount applies an administrative change. The result must still
// satisfy the balance range of the account kind. A concurrent write since
// the account was read surfaces as domain.ErrVersionConflict.
func (s *AccountService) UpdateAccount(ctx context.Context, id int64, upd AccountUpdate) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UpdateAccount: %w", err)
	}

	before := account.Balance
	if upd.Balance != nil {
		account.Balance = *upd.Balance
	}
	if upd.OwnerIDs != nil {
		account.OwnerIDs = append([]int64(nil), upd.OwnerIDs...)
	}

	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("UpdateAccount: %w", err)
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("UpdateAccount: %w", err)
	}

	s.logger.Info("account updated",
		"account_id", account.ID,
		"balance_before", before.String(),
		"balance_after", account.Balance.String(),
	)
	return account, nil
}

// DeleteAccount removes an account that no transaction refers to.
func (s *AccountService) DeleteAccount(ctx context.Context, id int64) error {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	if account.Referenced() {
		return fmt.Errorf("DeleteAccount: account %d: %w", id, domain.ErrAccountReferenced)
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}

	s.logger.Info("account deleted", "account_id", id)
	return nil
}
