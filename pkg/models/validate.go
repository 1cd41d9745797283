package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural rules of a draft: at least one item, each
// with a product, quantity >= 1 and price >= 0, a known payment method and
// every shipping field present. Failures wrap ErrValidation.
func (d *OrderDraft) Validate() error {
	return validationError(validate.Struct(d))
}

type itemList struct {
	Items []LineItem `validate:"required,min=1,dive"`
}

// ValidateItems applies the line item rules of a draft to a bare cart:
// non-empty, and every item with a product, quantity >= 1 and price >= 0.
func ValidateItems(items []LineItem) error {
	return validationError(validate.Struct(itemList{Items: items}))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, "; "))
}

// fieldPath strips the struct name prefix: "OrderDraft.Items[0].Quantity" -> "Items[0].Quantity".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
