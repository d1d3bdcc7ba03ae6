package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFilter is the sentinel every validation error unwraps to.
var ErrInvalidFilter = errors.New("invalid filter")

// StructuralError reports an operator that is illegal for the leaf type, a value
// whose shape does not match the operator, or a malformed node.
type StructuralError struct {
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid filter at %s: %s", e.Path, e.Reason)
}

func (e *StructuralError) Unwrap() error { return ErrInvalidFilter }

// UnknownFieldError reports a leaf whose field is not declared on the model.
type UnknownFieldError struct {
	Path    string
	Field   string
	Allowed []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("invalid field at %s: %s. Valid fields are: %s",
		e.Path, e.Field, strings.Join(e.Allowed, ", "))
}

func (e *UnknownFieldError) Unwrap() error { return ErrInvalidFilter }

// UnknownRelationshipError reports a relation filter naming an undeclared
// relationship.
type UnknownRelationshipError struct {
	Path         string
	Relationship string
	Allowed      []string
}

func (e *UnknownRelationshipError) Error() string {
	return fmt.Sprintf("invalid relationship at %s: %s. Valid relationships are: %s",
		e.Path, e.Relationship, strings.Join(e.Allowed, ", "))
}

func (e *UnknownRelationshipError) Unwrap() error { return ErrInvalidFilter }

// FieldTypeMismatchError reports a leaf whose type differs from the declared
// type of its field.
type FieldTypeMismatchError struct {
	Path     string
	Field    string
	Declared PrimitiveType
	Got      PrimitiveType
}

func (e *FieldTypeMismatchError) Error() string {
	return fmt.Sprintf("invalid filter at %s: field %s is declared as %s, filter uses %s",
		e.Path, e.Field, e.Declared, e.Got)
}

func (e *FieldTypeMismatchError) Unwrap() error { return ErrInvalidFilter }

// EmptyGroupError reports a group without children.
type EmptyGroupError struct {
	Path string
	Op   LogicalOp
}

func (e *EmptyGroupError) Error() string {
	return fmt.Sprintf("invalid filter at %s: %q group requires at least one filter", e.Path, e.Op)
}

func (e *EmptyGroupError) Unwrap() error { return ErrInvalidFilter }

// InvalidGroupOperatorError reports a group connective outside and/or/not.
type InvalidGroupOperatorError struct {
	Path string
	Op   string
}

func (e *InvalidGroupOperatorError) Error() string {
	return fmt.Sprintf("invalid filter at %s: unknown group operator %q, expected and, or or not", e.Path, e.Op)
}

func (e *InvalidGroupOperatorError) Unwrap() error { return ErrInvalidFilter }

// PathOf returns the tree path carried by a validation error, or "" when err
// is not one.
func PathOf(err error) string {
	var (
		se  *StructuralError
		ufe *UnknownFieldError
		ure *UnknownRelationshipError
		fte *FieldTypeMismatchError
		ege *EmptyGroupError
		igo *InvalidGroupOperatorError
	)
	switch {
	case errors.As(err, &se):
		return se.Path
	case errors.As(err, &ufe):
		return ufe.Path
	case errors.As(err, &ure):
		return ure.Path
	case errors.As(err, &fte):
		return fte.Path
	case errors.As(err, &ege):
		return ege.Path
	case errors.As(err, &igo):
		return igo.Path
	}
	return ""
}

const rootPath = "$"

func childPath(parent string, index int) string {
	return fmt.Sprintf("%s.filters[%d]", parent, index)
}

func innerPath(parent string) string {
	return parent + ".filter"
}

func structural(path, format string, args ...any) *StructuralError {
	return &StructuralError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
