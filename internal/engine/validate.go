package engine

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidRule = errors.New("invalid rule")

var validate = validator.New()

// ValidateRule rejects rules the engine must never see: no conditions, no
// actions, unknown vocabulary or a negative cooldown.
func ValidateRule(r Rule) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}
	for i, a := range r.Actions {
		switch act := a.(type) {
		case AdjustBudget:
			if act.Percentage == 0 || act.Percentage < -100 {
				return fmt.Errorf("%w: action %d: percentage must be non-zero and >= -100", ErrInvalidRule, i)
			}
		case PauseCampaign:
		case Notify:
			if err := validate.Struct(act); err != nil {
				return fmt.Errorf("%w: action %d: %v", ErrInvalidRule, i, err)
			}
		case nil:
			return fmt.Errorf("%w: action %d is nil", ErrInvalidRule, i)
		default:
			return fmt.Errorf("%w: action %d: %w: %T", ErrInvalidRule, i, ErrUnknownAction, a)
		}
	}
	return nil
}
