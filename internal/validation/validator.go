package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/stratadb/strata/internal/errors"
)

const (
	// Size limits
	MaxKeySize       = 1024             // 1 KB
	MaxValueSize     = 10 * 1024 * 1024 // 10 MB
	MaxNamespaceSize = 256              // 256 bytes
)

// Validator validates engine operations
type Validator struct {
	maxKeySize       int
	maxValueSize     int
	maxNamespaceSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:       MaxKeySize,
		maxValueSize:     MaxValueSize,
		maxNamespaceSize: MaxNamespaceSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxKeySize, maxValueSize, maxNamespaceSize int) *Validator {
	return &Validator{
		maxKeySize:       maxKeySize,
		maxValueSize:     maxValueSize,
		maxNamespaceSize: maxNamespaceSize,
	}
}

// ValidateWrite validates a write operation
func (v *Validator) ValidateWrite(namespace, key string, value []byte) error {
	if err := v.ValidateNamespace(namespace); err != nil {
		return err
	}
	if err := v.ValidateKey(key); err != nil {
		return err
	}
	return v.ValidateValue(value)
}

// ValidateRead validates the key portion of a read operation
func (v *Validator) ValidateRead(namespace, key string) error {
	if err := v.ValidateNamespace(namespace); err != nil {
		return err
	}
	return v.ValidateKey(key)
}

// ValidateNamespace validates a namespace
func (v *Validator) ValidateNamespace(namespace string) error {
	if namespace == "" {
		return errors.InvalidNamespace(namespace, "namespace cannot be empty")
	}

	if len(namespace) > v.maxNamespaceSize {
		return errors.InvalidNamespace(namespace, fmt.Sprintf("namespace exceeds maximum size of %d bytes", v.maxNamespaceSize))
	}

	// The namespace cannot contain ':' since it separates namespace and key
	// in the canonical composite form
	if strings.Contains(namespace, ":") {
		return errors.InvalidNamespace(namespace, "namespace cannot contain ':' character")
	}

	for _, r := range namespace {
		if unicode.IsControl(r) {
			return errors.InvalidNamespace(namespace, "namespace cannot contain control characters")
		}
	}

	return nil
}

// ValidateKey validates a key
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key cannot be empty")
	}

	if len(key) > v.maxKeySize {
		return errors.KeyTooLarge(len(key), v.maxKeySize)
	}

	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return errors.InvalidKey(key, "key cannot contain control characters")
		}
	}

	if strings.Contains(key, "\x00") {
		return errors.InvalidKey(key, "key cannot contain null bytes")
	}

	return nil
}

// ValidateValue validates a value payload
func (v *Validator) ValidateValue(value []byte) error {
	if len(value) == 0 {
		return errors.InvalidArgument("value cannot be empty", nil)
	}

	if len(value) > v.maxValueSize {
		return errors.ValueTooLarge(len(value), v.maxValueSize)
	}

	return nil
}
