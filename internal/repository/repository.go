// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g. postgres). Missing rows are reported as sql.ErrNoRows.
package repository

import "errors"

var (
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenced is returned when a write violates a foreign key: the row is referenced by,
	// or references, a row that does not allow it.
	ErrReferenced = errors.New("record is referenced")
	// ErrInsufficientStock is returned when an order asks for more units than the product has.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOutOfRange is returned when a value does not fit its column, including an order total
	// that would overflow.
	ErrOutOfRange = errors.New("value out of range")
	// ErrStatusChanged is returned when a guarded order update finds the order in a different status.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
