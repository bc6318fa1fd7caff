package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField signals a rule or filter referencing a field with no facet.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnsupportedOperator signals an operator invalid for a facet's type.
	ErrUnsupportedOperator = errors.New("unsupported operator")
	// ErrInvalidCondition signals a group condition outside the boolean table.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrMalformedRule signals a rule-tree node matching neither leaf nor group shape.
	ErrMalformedRule = errors.New("malformed rule")
	// ErrMalformedPayload signals an unparseable advanced-query payload.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrSavedSearchNotFound signals a missing saved search.
	ErrSavedSearchNotFound = errors.New("saved search not found")
)

// UnknownFieldError wraps ErrUnknownField with the offending field name.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: %q has no registered facet", ErrUnknownField.Error(), e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// NewUnknownField creates an unknown-field error.
func NewUnknownField(field string) error {
	return &UnknownFieldError{Field: field}
}

// UnsupportedOperatorError wraps ErrUnsupportedOperator with field and operator.
type UnsupportedOperatorError struct {
	Field    string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("%s: %q is not valid for field %q",
		ErrUnsupportedOperator.Error(), e.Operator, e.Field)
}

func (e *UnsupportedOperatorError) Unwrap() error { return ErrUnsupportedOperator }

// NewUnsupportedOperator creates an unsupported-operator error.
func NewUnsupportedOperator(field, operator string) error {
	return &UnsupportedOperatorError{Field: field, Operator: operator}
}

// InvalidConditionError wraps ErrInvalidCondition with the rejected condition.
type InvalidConditionError struct {
	Condition string
}

func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("%s: %q is not a boolean operator", ErrInvalidCondition.Error(), e.Condition)
}

func (e *InvalidConditionError) Unwrap() error { return ErrInvalidCondition }

// NewInvalidCondition creates an invalid-condition error.
func NewInvalidCondition(condition string) error {
	return &InvalidConditionError{Condition: condition}
}

// MalformedRuleError wraps ErrMalformedRule and reports the offending node.
type MalformedRuleError struct {
	Node string
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("%s: node %s matches neither rule nor group shape", ErrMalformedRule.Error(), e.Node)
}

func (e *MalformedRuleError) Unwrap() error { return ErrMalformedRule }

// NewMalformedRule creates a malformed-rule error for the given node.
func NewMalformedRule(node string) error {
	return &MalformedRuleError{Node: node}
}
