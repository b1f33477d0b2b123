package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mcoot/gamewallet/internal/api/apierr"
	"github.com/mcoot/gamewallet/internal/model"
)

// amountField is the JSON name of TopUpRequest.Amount
const amountField = "amount"

// maxBodyBytes caps request bodies; every request here is a handful of fields
const maxBodyBytes = 1 << 16

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt only looks at the first 72 bytes, and max= counts runes
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// Decode reads a JSON body into dst and validates it.
// Any failure is an INVALID_REQUEST error naming the problem, except a
// number that does not fit the amount field, which is model.ErrInvalidAmount.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierr.NewInvalidRequestError("request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == amountField && strings.HasPrefix(typeErr.Value, "number") {
			// Fractions, exponents and values past int64
			return fmt.Errorf("%w: must be a whole number of diamonds", model.ErrInvalidAmount)
		}
		return apierr.NewInvalidRequestError("invalid request body: " + err.Error())
	}
	if dec.More() {
		return apierr.NewInvalidRequestError("request body must contain a single JSON object")
	}

	return Validate(dst)
}

// Validate checks the struct's validate tags
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apierr.NewInvalidRequestError("invalid request")
	}
	return apierr.NewInvalidRequestError(describe(fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
