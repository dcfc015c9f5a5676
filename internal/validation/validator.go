// Package validation checks transactions against rule groups that depend on
// the lifecycle stage and the category group of the transaction.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/shopspring/decimal"
)

type Stage int

const (
	StageNew Stage = iota
	StageExisting
)

func (s Stage) String() string {
	if s == StageExisting {
		return "existing"
	}
	return "new"
}

type currencyChecker interface {
	HasCurrency(currency string) bool
}

type Validator struct {
	validate *validator.Validate
}

func New(currencies currencyChecker) *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Decimals are validated through their string form so comparisons keep
	// full precision.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "dgt", decimalCompare(decimal.Decimal.GreaterThan))
	mustRegister(v, "dgte", decimalCompare(decimal.Decimal.GreaterThanOrEqual))
	mustRegister(v, "currency", func(fl validator.FieldLevel) bool {
		return currencies.HasCurrency(fl.Field().String())
	})
	mustRegister(v, "bill", func(fl validator.FieldLevel) bool {
		m, ok := fl.Field().Interface().(domain.Metadata)
		return ok && strings.TrimSpace(m[domain.MetaBill]) != ""
	})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

func decimalCompare(cmp func(a, b decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return cmp(val, bound)
	}
}

type unconditionalRules struct {
	Date             *time.Time       `json:"date" validate:"required"`
	Metadata         domain.Metadata  `json:"metadata" validate:"required"`
	Amount           *decimal.Decimal `json:"amount" validate:"required"`
	EmitterAccountID *int64           `json:"emitterAccountId" validate:"required"`
	Currency         string           `json:"currency" validate:"required"`
	Label            string           `json:"label" validate:"required"`
	Type             domain.Category  `json:"type" validate:"required"`
}

type advancedRules struct {
	EmitterAccountID  *int64           `json:"emitterAccountId" validate:"omitempty,gt=0"`
	ReceiverAccountID *int64           `json:"receiverAccountId" validate:"omitempty,gt=0"`
	Amount            *decimal.Decimal `json:"amount" validate:"omitempty,dgt=0"`
	Currency          string           `json:"currency" validate:"omitempty,currency"`
}

type newRules struct {
	ID     int64                    `json:"id" validate:"isdefault"`
	Status domain.TransactionStatus `json:"status" validate:"eq=UNPROCESSED"`
}

type existingRules struct {
	ID int64 `json:"id" validate:"gt=0"`
}

type digitalRules struct {
	ReceiverAccountID *int64           `json:"receiverAccountId" validate:"required"`
	Type              domain.Category  `json:"type" validate:"oneof=credit debit"`
	Amount            *decimal.Decimal `json:"amount" validate:"omitempty,dgt=0"`
}

type cashRules struct {
	ReceiverAccountID *int64           `json:"receiverAccountId" validate:"isdefault"`
	Type              domain.Category  `json:"type" validate:"oneof=deposit withdraw"`
	Amount            *decimal.Decimal `json:"amount" validate:"omitempty,dgte=10"`
	Metadata          domain.Metadata  `json:"metadata" validate:"bill"`
}

func passes(tx *domain.Transaction, stage Stage, group domain.CategoryGroup) []any {
	out := []any{
		&unconditionalRules{
			Date:             tx.Date,
			Metadata:         tx.Metadata,
			Amount:           tx.Amount,
			EmitterAccountID: tx.EmitterAccountID,
			Currency:         tx.Currency,
			Label:            tx.Label,
			Type:             tx.Category,
		},
		&advancedRules{
			EmitterAccountID:  tx.EmitterAccountID,
			ReceiverAccountID: tx.ReceiverAccountID,
			Amount:            tx.Amount,
			Currency:          tx.Currency,
		},
	}

	switch stage {
	case StageExisting:
		out = append(out, &existingRules{ID: tx.ID})
	default:
		out = append(out, &newRules{ID: tx.ID, Status: tx.Status})
	}

	switch group {
	case domain.Digital:
		out = append(out, &digitalRules{
			ReceiverAccountID: tx.ReceiverAccountID,
			Type:              tx.Category,
			Amount:            tx.Amount,
		})
	case domain.Cash:
		out = append(out, &cashRules{
			ReceiverAccountID: tx.ReceiverAccountID,
			Type:              tx.Category,
			Amount:            tx.Amount,
			Metadata:          tx.Metadata,
		})
	}
	return out
}

// Violations runs every rule pass and returns one message per offending
// field. A field reported by an earlier pass is not reported again.
func (v *Validator) Violations(tx *domain.Transaction, stage Stage, group domain.CategoryGroup) []string {
	if tx == nil {
		return []string{"transaction must not be null"}
	}

	seen := make(map[string]struct{})
	var out []string

	for _, rules := range passes(tx, stage, group) {
		err := v.validate.Struct(rules)
		if err == nil {
			continue
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			out = append(out, err.Error())
			continue
		}

		for _, fe := range fieldErrs {
			if _, dup := seen[fe.Field()]; dup {
				continue
			}
			seen[fe.Field()] = struct{}{}
			out = append(out, message(fe))
		}
	}
	return out
}

// Validate returns a *domain.ValidationError listing every violation, or nil.
func (v *Validator) Validate(tx *domain.Transaction, stage Stage, group domain.CategoryGroup) error {
	if violations := v.Violations(tx, stage, group); len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be null", fe.Field())
	case "gt", "dgt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "dgte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "currency":
		return fmt.Sprintf("%s %v is not a supported currency", fe.Field(), fe.Value())
	case "isdefault":
		return fmt.Sprintf("%s must be null", fe.Field())
	case "eq":
		return fmt.Sprintf("%s must be %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "bill":
		return fmt.Sprintf("%s must contain a non-empty %s", fe.Field(), domain.MetaBill)
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}
