package authz

import "errors"

var (
	ErrInvalidInput    = errors.New("authz: invalid input")
	ErrNotFound        = errors.New("authz: not found")
	ErrConflict        = errors.New("authz: already exists")
	ErrCyclicRole      = errors.New("authz: cyclic role inheritance")
	ErrDanglingScope   = errors.New("authz: scope references unknown entity")
	ErrConditionConfig = errors.New("authz: invalid condition")
)
