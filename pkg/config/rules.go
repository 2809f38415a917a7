// Copyright 2025 CompliK Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides validation rules, environment overrides and port
// set parsing for the portkill configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func invalid(code, message string, value interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: message, Value: value}
}

// StringRule validates string values
type StringRule struct {
	MaxLength int
	Required  bool
}

func (r *StringRule) Validate(value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a string type", value)
	}
	if str == "" {
		if r.Required {
			return invalid("REQUIRED", "Field cannot be empty", value)
		}
		return nil
	}
	if r.MaxLength > 0 && len(str) > r.MaxLength {
		return invalid("MAX_LENGTH", fmt.Sprintf("String length cannot be greater than %d", r.MaxLength), value)
	}
	return nil
}

// DurationRule validates duration values. A zero duration means "use the
// default" and is accepted.
type DurationRule struct {
	Min time.Duration
	Max time.Duration
}

func (r *DurationRule) Validate(value interface{}) *ValidationError {
	d, ok := value.(time.Duration)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a duration type", value)
	}
	if d < 0 {
		return invalid("NEGATIVE_DURATION", "Duration cannot be negative", value)
	}
	if d == 0 {
		return nil
	}
	if r.Min > 0 && d < r.Min {
		return invalid("MIN_DURATION", fmt.Sprintf("Duration cannot be less than %v", r.Min), value)
	}
	if r.Max > 0 && d > r.Max {
		return invalid("MAX_DURATION", fmt.Sprintf("Duration cannot be greater than %v", r.Max), value)
	}
	return nil
}

// EnumRule validates enum values, case-insensitively
type EnumRule struct {
	AllowedValues []string
	AllowEmpty    bool
}

func (r *EnumRule) Validate(value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a string type", value)
	}
	if str == "" && r.AllowEmpty {
		return nil
	}
	for _, allowed := range r.AllowedValues {
		if strings.EqualFold(str, allowed) {
			return nil
		}
	}
	return invalid("INVALID_ENUM", fmt.Sprintf("Value must be one of: %v", r.AllowedValues), value)
}

// PortRule validates TCP port numbers. Zero is accepted when AllowZero is set
// so that an unset port falls back to its default.
type PortRule struct {
	AllowZero bool
}

func (r *PortRule) Validate(value interface{}) *ValidationError {
	var port int
	switch v := value.(type) {
	case int:
		port = v
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return invalid("INVALID_PORT", "Port number must be numeric", value)
		}
		port = parsed
	default:
		return invalid("INVALID_TYPE", "Port number must be an integer type", value)
	}
	if port == 0 && r.AllowZero {
		return nil
	}
	if port < 1 || port > 65535 {
		return invalid("INVALID_PORT_RANGE", "Port number must be in the range 1-65535", value)
	}
	return nil
}

// PortListRule applies PortRule to every element of an int slice.
type PortListRule struct{}

func (r *PortListRule) Validate(value interface{}) *ValidationError {
	ports, ok := value.([]int)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be an integer array type", value)
	}
	rule := &PortRule{}
	for i, p := range ports {
		if err := rule.Validate(p); err != nil {
			err.Field = fmt.Sprintf("[%d]", i)
			return err
		}
	}
	return nil
}

// PortRangeRule validates "low-high" range expressions.
type PortRangeRule struct{}

func (r *PortRangeRule) Validate(value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a string type", value)
	}
	if _, _, err := ParseRange(str); err != nil {
		return invalid("INVALID_PORT_RANGE", err.Error(), value)
	}
	return nil
}

// GlobRule validates filter patterns. Only '*' and '?' are special, so any
// non-blank pattern is accepted.
type GlobRule struct {
	MaxLength int
}

func (r *GlobRule) Validate(value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a string type", value)
	}
	if strings.TrimSpace(str) == "" {
		return invalid("EMPTY_PATTERN", "Pattern cannot be blank", value)
	}
	if r.MaxLength > 0 && len(str) > r.MaxLength {
		return invalid("MAX_LENGTH", fmt.Sprintf("Pattern length cannot be greater than %d", r.MaxLength), value)
	}
	return nil
}

// SliceRule validates string slice values
type SliceRule struct {
	ElementRule ValidationRule
	MaxLength   int
}

func (r *SliceRule) Validate(value interface{}) *ValidationError {
	slice, ok := value.([]string)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be a string array type", value)
	}
	if r.MaxLength > 0 && len(slice) > r.MaxLength {
		return invalid("MAX_LENGTH", fmt.Sprintf("Array length cannot be greater than %d", r.MaxLength), value)
	}
	if r.ElementRule == nil {
		return nil
	}
	for i, element := range slice {
		if err := r.ElementRule.Validate(element); err != nil {
			err.Field = fmt.Sprintf("[%d]", i)
			return err
		}
	}
	return nil
}

// NumberRule validates integer values
type NumberRule struct {
	Min *int
	Max *int
}

func (r *NumberRule) Validate(value interface{}) *ValidationError {
	num, ok := value.(int)
	if !ok {
		return invalid("INVALID_TYPE", "Value must be an integer type", value)
	}
	if r.Min != nil && num < *r.Min {
		return invalid("MIN_VALUE", fmt.Sprintf("Value cannot be less than %d", *r.Min), value)
	}
	if r.Max != nil && num > *r.Max {
		return invalid("MAX_VALUE", fmt.Sprintf("Value cannot be greater than %d", *r.Max), value)
	}
	return nil
}

func intPtr(v int) *int { return &v }
