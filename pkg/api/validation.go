package api

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/coldroom-service/pkg/errors"
)

var tagNameOnce sync.Once

// engine returns gin's validator with JSON field names enabled
func engine() *validator.Validate {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	tagNameOnce.Do(func() {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
	return v
}

// RegisterEnum registers a validation tag accepting only the given string values
func RegisterEnum(tag string, allowed ...string) error {
	v := engine()
	if v == nil {
		return fmt.Errorf("gin validator engine is not go-playground/validator")
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	})
}

// BindAndValidate binds request body and validates it
func BindAndValidate(c *gin.Context, obj any) *errors.AppError {
	engine()
	if err := c.ShouldBindJSON(obj); err != nil {
		return toAppError("invalid request body", err)
	}
	return nil
}

// BindQueryAndValidate binds query parameters and validates them
func BindQueryAndValidate(c *gin.Context, obj any) *errors.AppError {
	engine()
	if err := c.ShouldBindQuery(obj); err != nil {
		return toAppError("invalid query parameters", err)
	}
	return nil
}

func toAppError(prefix string, err error) *errors.AppError {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.ErrBadRequest(fmt.Sprintf("%s: %v", prefix, err))
	}
	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		field := fieldPath(fe)
		fields[field] = errorMessage(field, fe)
	}
	return errors.ErrValidationWithFields("validation failed", fields)
}

// fieldPath drops the root struct name from the namespace, e.g. "boxes[0].quantity"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func errorMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "variety", "box_type", "grade", "cold_room":
		return fmt.Sprintf("%s has an unsupported value %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
