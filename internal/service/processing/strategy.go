package processing

import (
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
)

// strategy is the category-specific part of the pipeline. Everything else
// (validation, lookup, conversion, persistence) is shared by the driver.
type strategy struct {
	category domain.Category
	group    domain.CategoryGroup

	// claim marks the transaction OUTSTANDING before balances move. Only
	// digital transactions are stored before processing.
	claim bool

	// apply moves amount between the resolved accounts. receiver is nil for
	// cash movements.
	apply func(emitter, receiver *domain.Account, amount domain.Money)
}

var strategies = map[domain.Category]strategy{
	domain.CategoryCredit: {
		category: domain.CategoryCredit,
		group:    domain.Digital,
		claim:    true,
		apply: func(emitter, receiver *domain.Account, amount domain.Money) {
			emitter.Balance = emitter.Balance.Minus(amount)
			receiver.Balance = receiver.Balance.Plus(amount)
		},
	},
	domain.CategoryDebit: {
		category: domain.CategoryDebit,
		group:    domain.Digital,
		claim:    true,
		apply: func(emitter, receiver *domain.Account, amount domain.Money) {
			emitter.Balance = emitter.Balance.Plus(amount)
			receiver.Balance = receiver.Balance.Minus(amount)
		},
	},
	domain.CategoryDeposit: {
		category: domain.CategoryDeposit,
		group:    domain.Cash,
		apply: func(emitter, _ *domain.Account, amount domain.Money) {
			emitter.Balance = emitter.Balance.Plus(amount)
		},
	},
	domain.CategoryWithdraw: {
		category: domain.CategoryWithdraw,
		group:    domain.Cash,
		apply: func(emitter, _ *domain.Account, amount domain.Money) {
			emitter.Balance = emitter.Balance.Minus(amount)
		},
	},
}

func strategyFor(c domain.Category) (strategy, bool) {
	s, ok := strategies[c]
	return s, ok
}
