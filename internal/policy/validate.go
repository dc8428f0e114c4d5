package policy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MinFeatureHistoryDays is the shortest bar history every feature can be computed from
// (SMA-50 plus the as-of bar)
const MinFeatureHistoryDays = 51

var validate *validator.Validate

func init() {
	validate = validator.New()
	// 에러 메시지에 JSON 필드명 사용
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateStruct runs the struct tags of one document (policy docs, model cards)
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, ValidationError{
			Field:   fe.Namespace(),
			Message: fieldMessage(fe),
		}.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// Validate checks cross-document and cross-field constraints the tags cannot express
// 실패 시 error 반환 (프로그램 중단)
func Validate(b *Bundle) error {
	sel := b.Root.Selection
	if sel.DownThreshold >= sel.UpThreshold {
		return ValidationError{"root.selection", "down_threshold must be < up_threshold"}
	}

	w := b.Feature.Winsorize
	if w.Enabled && w.LowerPct >= w.UpperPct {
		return ValidationError{"feature.winsorize", "lower_pct must be < upper_pct"}
	}

	if b.Feature.MinHistoryDays < MinFeatureHistoryDays {
		return ValidationError{"feature.min_history_days", fmt.Sprintf("must be >= %d (longest feature window)", MinFeatureHistoryDays)}
	}

	seen := make(map[string]bool, len(b.Feature.AllowedFeatures))
	for _, name := range b.Feature.AllowedFeatures {
		if seen[name] {
			return ValidationError{"feature.allowed_features", fmt.Sprintf("duplicate %q", name)}
		}
		seen[name] = true
	}

	if b.DisasterRecovery.RollbackWindowDays < b.DisasterRecovery.MaxLastGoodAgeDays {
		return ValidationError{"disaster_recovery", "rollback_window_days must be >= max_last_good_age_days"}
	}

	return nil
}

// ValidateHorizons checks the selection policy against the champion card's horizons.
// A primary horizon the model never scores would leave the hotset and watchlist empty.
func ValidateHorizons(b *Bundle, horizons []int) error {
	primary := b.Root.Selection.PrimaryHorizonDays
	for _, h := range horizons {
		if h == primary {
			return nil
		}
	}
	return ValidationError{"root.selection.primary_horizon_days", fmt.Sprintf("%d is not a model card horizon %v", primary, horizons)}
}
