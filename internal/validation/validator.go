// Warden - Keep-alive supervision for the OpenList server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package validation wraps go-playground/validator v10 with a shared
// instance and the custom rules used by warden configuration.
//
// Custom tags:
//   - sockpath: a unix socket path short enough for sockaddr_un (107 bytes)
//   - argv: a non-empty command vector whose first element is not blank
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// maxSocketPath is sizeof(sockaddr_un.sun_path) minus the trailing NUL on Linux.
const maxSocketPath = 107

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule.
type FieldError struct {
	Namespace string
	Tag       string
	Param     string
	Message   string
}

// Error returns the human-readable message.
func (e FieldError) Error() string {
	return e.Message
}

// Errors collects every failed rule of one struct.
type Errors []FieldError

// Error joins the field messages.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the shared validator. Field names are reported using
// the koanf tag so messages match the keys users write in config files.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("sockpath", func(fl validator.FieldLevel) bool {
			p := fl.Field().String()
			return p != "" && len(p) <= maxSocketPath
		})
		_ = validate.RegisterValidation("argv", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.Slice || f.Len() == 0 {
				return false
			}
			return strings.TrimSpace(f.Index(0).String()) != ""
		})
	})
	return validate
}

// ValidateStruct validates s and returns Errors, or nil when s is valid.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}

	out := make(Errors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Namespace: trimRoot(fe.Namespace()),
			Tag:       fe.Tag(),
			Param:     fe.Param(),
			Message:   translate(fe),
		}
	}
	return out
}

// trimRoot drops the struct type name validator prefixes to namespaces.
func trimRoot(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func translate(fe validator.FieldError) string {
	field := trimRoot(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt", "min":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "sockpath":
		return fmt.Sprintf("%s must be a non-empty path of at most %d bytes", field, maxSocketPath)
	case "argv":
		return field + " must name a command"
	case "hostname_port":
		return field + " must be host:port"
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
