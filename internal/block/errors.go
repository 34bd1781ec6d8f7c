package block

import (
	"errors"
	"fmt"
)

var (
	// ErrSkipped means the block's if_command disabled it.
	ErrSkipped = errors.New("block skipped by if_command")

	// ErrChannelClosed means the dispatcher is gone and the request was
	// dropped.
	ErrChannelClosed = errors.New("update request channel closed")

	// ErrUnknownType means no factory is registered for a block tag.
	ErrUnknownType = errors.New("unknown block type")
)

// ConstructionError is a failure to build one block. It only affects that
// block's slot.
type ConstructionError struct {
	ID   int
	Type string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("block %d (%s): %v", e.ID, e.Type, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Op names a block operation.
type Op string

const (
	OpUpdate Op = "update"
	OpClick  Op = "click"
)

// OperationError wraps a failed update or click. The block stays scheduled.
type OperationError struct {
	ID  int
	Op  Op
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("block %d %s: %v", e.ID, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
