package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", notBlank); err != nil {
		panic(err)
	}
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// parseBody decodes the request body into req and checks its validate tags.
// Failures come back as a 400 *fiber.Error naming the first bad field.
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required", "notblank", "min":
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s is required", fe.Field()))
	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s is invalid", fe.Field()))
	}
}
