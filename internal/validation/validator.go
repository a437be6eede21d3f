package validation

import (
	"fmt"
	"net/mail"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validator checks `validate` struct tags: required, email, min=N, max=N, oneof=a|b
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldName(fieldType), err)
		}
	}

	return nil
}

// fieldName prefers the JSON name, which is what clients see
func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) error {
	for _, rule := range strings.Split(tag, ",") {
		name, arg, _ := strings.Cut(rule, "=")

		switch name {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "email":
			if field.Kind() == reflect.String && field.String() != "" {
				if _, err := mail.ParseAddress(field.String()); err != nil {
					return fmt.Errorf("invalid email format")
				}
			}

		case "min", "max":
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("bad %s rule %q", name, arg)
			}
			size, ok := measure(field)
			if !ok {
				continue
			}
			if name == "min" && size < n {
				return fmt.Errorf("minimum is %d", n)
			}
			if name == "max" && size > n {
				return fmt.Errorf("maximum is %d", n)
			}

		case "oneof":
			if field.Kind() != reflect.String || field.String() == "" {
				continue
			}
			allowed := strings.Split(arg, "|")
			found := false
			for _, a := range allowed {
				if a == field.String() {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
			}
		}
	}

	return nil
}

// measure returns string length in characters or the numeric value
func measure(field reflect.Value) (int, bool) {
	switch field.Kind() {
	case reflect.String:
		return utf8.RuneCountInString(field.String()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(field.Int()), true
	case reflect.Slice, reflect.Map:
		return field.Len(), true
	}
	return 0, false
}
