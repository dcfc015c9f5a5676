package worker

import (
	"context"
	"sync"
	"time"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

// fakeProcessor records the order transactions finish in and flags any
// moment where two runs touched the same account.
type fakeProcessor struct {
	mu      sync.Mutex
	order   []int64
	active  map[int64]int
	overlap bool
	peak    int
	current int

	delay time.Duration
	fail  map[int64]error
	hook  func(tx *domain.Transaction)
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{active: make(map[int64]int), fail: make(map[int64]error)}
}

func (f *fakeProcessor) Process(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	f.mu.Lock()
	for _, id := range tx.Accounts() {
		f.active[id]++
		if f.active[id] > 1 {
			f.overlap = true
		}
	}
	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(tx)
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tx.Accounts() {
		f.active[id]--
	}
	f.current--
	f.order = append(f.order, tx.ID)
	return tx, f.fail[tx.ID]
}

func (f *fakeProcessor) Order() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.order...)
}

func (f *fakeProcessor) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

func (f *fakeProcessor) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type staticSource struct {
	mu    sync.Mutex
	txs   []*domain.Transaction
	calls int
	err   error
}

func (s *staticSource) FindUnprocessed(context.Context) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*domain.Transaction, len(s.txs))
	copy(out, s.txs)
	return out, nil
}

func (s *staticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pairTx(id, emitter, receiver int64) *domain.Transaction {
	e, r := emitter, receiver
	tx := &domain.Transaction{ID: id, EmitterAccountID: &e, Category: domain.CategoryCredit, Status: domain.StatusUnprocessed}
	if receiver != 0 {
		tx.ReceiverAccountID = &r
	}
	return tx
}
