// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package validation provides struct validation using go-playground/validator
// v10. It exposes a thread-safe singleton validator with a custom rule for
// room names, used by the command router to reject malformed client input
// before it reaches any state.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// roomNamePattern validates broadcast room names: a fixed set of global
// rooms plus per-entity rooms of the form "entity:<uuid>".
func roomNameValid(fl validator.FieldLevel) bool {
	return RoomNameValid(fl.Field().String())
}

// RoomNameValid reports whether name is a well-formed room name.
func RoomNameValid(name string) bool {
	switch name {
	case "catalog", "player", "associations", "transfers":
		return true
	}
	if id, ok := strings.CutPrefix(name, "entity:"); ok {
		_, err := uuid.Parse(id)
		return err == nil
	}
	return false
}

// getValidator returns the singleton validator, creating it on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for empty tag names.
		_ = validate.RegisterValidation("roomname", roomNameValid)
	})
	return validate
}

// ValidateStruct validates v against its `validate` tags and returns a
// single error describing every failed field, or nil.
func ValidateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldMessage renders one field error in a client-friendly form.
func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "uuid":
		return field + " must be a valid UUID"
	case "roomname":
		return field + " is not a valid room name"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
