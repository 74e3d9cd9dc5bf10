package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrProfileNotFound      = errors.New("profile not found")
)

// Kind is the closed classification of store failures. Everything outside
// this package sees kinds, never driver error codes.
type Kind int

const (
	KindGeneric Kind = iota
	KindSchemaMissing
	KindPermissionDenied
	KindForeignKey
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindSchemaMissing:
		return "schema_missing"
	case KindPermissionDenied:
		return "permission_denied"
	case KindForeignKey:
		return "foreign_key"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "generic"
	}
}

// StoreError wraps a driver error with its classification and the operation
// that produced it.
type StoreError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// classify translates a driver-level error into a StoreError. Postgres error
// codes are inspected here and nowhere else.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &StoreError{Kind: KindNotFound, Op: op, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P01": // undefined_table
			return &StoreError{Kind: KindSchemaMissing, Op: op, Err: err}
		case "42501": // insufficient_privilege
			return &StoreError{Kind: KindPermissionDenied, Op: op, Err: err}
		case "23503": // foreign_key_violation
			return &StoreError{Kind: KindForeignKey, Op: op, Err: err}
		case "23505": // unique_violation
			return &StoreError{Kind: KindConflict, Op: op, Err: err}
		}
	}
	return &StoreError{Kind: KindGeneric, Op: op, Err: err}
}

// KindOf reports the classification of err, KindGeneric when unclassified.
func KindOf(err error) Kind {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	if errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrProfileNotFound) {
		return KindNotFound
	}
	return KindGeneric
}

// UserMessage maps a store failure to the short message shown to end users.
// Raw driver text never reaches a response.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindSchemaMissing:
		return "backend not provisioned"
	case KindPermissionDenied:
		return "access denied"
	case KindForeignKey:
		return "related record missing, try again"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "already exists"
	default:
		return "something went wrong, try again"
	}
}
