package billing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/billing/internal/shared"
)

const (
	moneyScale    = 2
	quantityScale = 3

	// Integer digits allowed by the NUMERIC(19,2) money, NUMERIC(12,3) quantity
	// and NUMERIC(24,5) line total columns.
	moneyDigits     = 17
	quantityDigits  = 9
	lineTotalDigits = 19
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	// Decimal fields are compared numerically by the gte/gt tags. The float
	// is only trusted near the small tag thresholds; checkDigits and
	// checkScale bound magnitude and precision exactly.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) != 3 || strings.ToUpper(code) != code {
			return false
		}
		_, err := currency.ParseISO(code)
		return err == nil
	})
	return v
}

// fieldErrors collects field level messages before they become a ValidationError.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) checkScale(field string, d decimal.Decimal, places int32) {
	if !d.Equal(d.Truncate(places)) {
		f.add(field, fmt.Sprintf("must have at most %d decimal places", places))
	}
}

// checkDigits rejects values whose integer part does not fit in digits.
func (f fieldErrors) checkDigits(field string, d decimal.Decimal, digits int32) {
	if d.Abs().GreaterThanOrEqual(decimal.New(1, digits)) {
		f.add(field, fmt.Sprintf("must have at most %d integer digits", digits))
	}
}

// checkMoney applies the column bounds for a money amount.
func (f fieldErrors) checkMoney(field string, d decimal.Decimal) {
	f.checkDigits(field, d, moneyDigits)
	f.checkScale(field, d, moneyScale)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return shared.NewValidationError(f)
}

// validateStruct runs the declarative rules on in and merges the messages
// into fields.
func validateStruct(in any, fields fieldErrors) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields.add(fieldPath(fe), messageFor(fe))
		}
	}
	return fields.err()
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "currency":
		return "must be an ISO 4217 currency code"
	case "dive":
		return "is invalid"
	default:
		return "is invalid"
	}
}
