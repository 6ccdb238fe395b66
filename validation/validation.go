// Package validation turns loosely-typed request payloads into checked,
// typed values. Payload structs describe their constraints with `validate`
// struct tags; Struct reports every violated field at once.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return Slug(fl.Field().String())
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if n, ok := field.Interface().(NullableString); ok {
			return n.String
		}
		return nil
	}, NullableString{})
	return v
}

// Error is a validation failure naming every rejected field.
type Error struct {
	Fields map[string]string
}

// NewError builds an Error for a single field.
func NewError(field, message string) *Error {
	return &Error{Fields: map[string]string{field: message}}
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct validates v against its struct tags. It returns nil or *Error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fieldPath(fe)] = message(fe)
	}
	return out
}

// Slug reports whether s is a valid slug.
func Slug(s string) bool {
	return slugPattern.MatchString(s)
}

// fieldPath drops the top-level struct name from the namespace,
// e.g. "CreatePostInput.categories[1]" becomes "categories[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email"
	case "slug":
		return "must be lowercase alphanumeric with hyphens"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "is invalid"
}

// NullableString is a JSON string field that distinguishes an absent key
// from an explicit null or empty string. Set is true whenever the key was
// present; Valid is false for null and "".
type NullableString struct {
	Set    bool
	Valid  bool
	String string
}

// NewNullableString returns a present, non-empty value.
func NewNullableString(s string) NullableString {
	return NullableString{Set: true, Valid: s != "", String: s}
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Valid = false
		n.String = ""
		return nil
	}
	if err := json.Unmarshal(b, &n.String); err != nil {
		return err
	}
	n.Valid = n.String != ""
	return nil
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

// Ptr returns the value as a nullable pointer (nil for null or "").
func (n NullableString) Ptr() *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
