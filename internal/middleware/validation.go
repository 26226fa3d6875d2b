package middleware

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/medvault-api/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":  "Field is required",
	"gt":        "Value must be positive",
	"min":       "Value is too small",
	"max":       "Value is too large",
	"isodate":   "Date must be YYYY-MM-DD",
	"slotlabel": "Time must be HH:MM",
}

var registerOnce sync.Once

// RegisterValidators adds the isodate and slotlabel tags to gin's validator
// and reports fields by their json names.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := model.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("slotlabel", func(fl validator.FieldLevel) bool {
			_, err := model.ParseSlot(fl.Field().String())
			return err == nil
		})
	})
}

// ValidationErrors flattens binding failures anywhere in err's chain.
func ValidationErrors(err error) []ValidationError {
	var errs validator.ValidationErrors
	if !stderrors.As(err, &errs) {
		return nil
	}

	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg := messages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}
