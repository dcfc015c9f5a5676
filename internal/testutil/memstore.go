package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

// MemStore is an in-memory stand-in for the Postgres repositories. It keeps
// the same contracts: ids are assigned on create, account saves are version
// checked, terminal transactions cannot be updated and WithinTx rolls back
// every write made by fn when fn fails.
type MemStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	accounts     map[int64]*domain.Account
	transactions map[int64]*domain.Transaction
	nextAccount  int64
	nextTx       int64

	// SaveErr, when set, is returned by every account save.
	SaveErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		accounts:     make(map[int64]*domain.Account),
		transactions: make(map[int64]*domain.Transaction),
	}
}

// PutAccount stores a copy of a with a fresh id when a.ID is zero.
func (s *MemStore) PutAccount(a *domain.Account) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		s.nextAccount++
		a.ID = s.nextAccount
	} else if a.ID > s.nextAccount {
		s.nextAccount = a.ID
	}
	s.accounts[a.ID] = a.Clone()
	return a
}

func (s *MemStore) Balance(id int64) domain.Money {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[id]; ok {
		return a.Balance
	}
	return domain.Money{}
}

func (s *MemStore) Transaction(id int64) *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.transactions[id]; ok {
		return tx.Clone()
	}
	return nil
}

func (s *MemStore) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accounts := make(map[int64]*domain.Account, len(s.accounts))
	for id, a := range s.accounts {
		accounts[id] = a.Clone()
	}
	txs := make(map[int64]*domain.Transaction, len(s.transactions))
	for id, tx := range s.transactions {
		txs[id] = tx.Clone()
	}
	nextAccount, nextTx := s.nextAccount, s.nextTx
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.accounts, s.transactions = accounts, txs
		s.nextAccount, s.nextTx = nextAccount, nextTx
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemStore) FindAccount(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("FindByID: account %d: %w", id, domain.ErrNotFound)
	}
	c := a.Clone()
	c.IssuedTransactionIDs, c.IncomingTransactionIDs = nil, nil
	for txID, tx := range s.transactions {
		p := tx.Pair()
		if p.EmitterAccountID == id {
			c.IssuedTransactionIDs = append(c.IssuedTransactionIDs, txID)
		}
		if p.ReceiverAccountID == id {
			c.IncomingTransactionIDs = append(c.IncomingTransactionIDs, txID)
		}
	}
	sortIDs(c.IssuedTransactionIDs)
	sortIDs(c.IncomingTransactionIDs)
	return c, nil
}

func (s *MemStore) CreateAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAccount++
	a.ID = s.nextAccount
	a.Version = 0
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *MemStore) SaveAccount(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	cur, ok := s.accounts[a.ID]
	if !ok {
		return fmt.Errorf("Save: account %d: %w", a.ID, domain.ErrNotFound)
	}
	if cur.Version != a.Version {
		return fmt.Errorf("Save: account %d: %w", a.ID, domain.ErrVersionConflict)
	}
	a.Version++
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *MemStore) DeleteAccount(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("Delete: account %d: %w", id, domain.ErrNotFound)
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemStore) FindTransaction(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("FindByID: transaction %d: %w", id, domain.ErrNotFound)
	}
	return tx.Clone(), nil
}

func (s *MemStore) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTx++
	tx.ID = s.nextTx
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (s *MemStore) UpdateTransaction(_ context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.transactions[tx.ID]
	if !ok {
		return fmt.Errorf("Update: transaction %d: %w", tx.ID, domain.ErrNotFound)
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("Update: transaction %d: %w", tx.ID, domain.ErrStateConflict)
	}
	s.transactions[tx.ID] = tx.Clone()
	return nil
}

func (s *MemStore) MarkOutstanding(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("MarkOutstanding: transaction %d: %w", id, domain.ErrNotFound)
	}
	if cur.Status != domain.StatusUnprocessed {
		return fmt.Errorf("MarkOutstanding: transaction %d: %w", id, domain.ErrStateConflict)
	}
	cur.Status = domain.StatusOutstanding
	return nil
}

func (s *MemStore) FindUnprocessed(_ context.Context) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.Status == domain.StatusUnprocessed {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Accounts and Transactions expose the store through the repository method
// names used by the services.
func (s *MemStore) Accounts() *MemAccounts { return &MemAccounts{s: s} }
func (s *MemStore) Transactions() *MemTransactions { return &MemTransactions{s: s} }

type MemAccounts struct{ s *MemStore }

func (r *MemAccounts) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.s.FindAccount(ctx, id)
}

// FindByIDForUpdate needs no row lock: WithinTx already serializes writers.
func (r *MemAccounts) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Account, error) {
	return r.s.FindAccount(ctx, id)
}

func (r *MemAccounts) Create(ctx context.Context, a *domain.Account) error {
	return r.s.CreateAccount(ctx, a)
}
func (r *MemAccounts) Save(ctx context.Context, a *domain.Account) error {
	return r.s.SaveAccount(ctx, a)
}
func (r *MemAccounts) Delete(ctx context.Context, id int64) error {
	return r.s.DeleteAccount(ctx, id)
}

type MemTransactions struct{ s *MemStore }

func (r *MemTransactions) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	return r.s.FindTransaction(ctx, id)
}
func (r *MemTransactions) Create(ctx context.Context, tx *domain.Transaction) error {
	return r.s.CreateTransaction(ctx, tx)
}
func (r *MemTransactions) Update(ctx context.Context, tx *domain.Transaction) error {
	return r.s.UpdateTransaction(ctx, tx)
}
func (r *MemTransactions) MarkOutstanding(ctx context.Context, id int64) error {
	return r.s.MarkOutstanding(ctx, id)
}
func (r *MemTransactions) FindUnprocessed(ctx context.Context) ([]*domain.Transaction, error) {
	return r.s.FindUnprocessed(ctx)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
