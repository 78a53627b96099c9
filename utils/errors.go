package utils

import "errors"

var (
	// ErrUnsupported marks a shape, basis or point combination that is not implemented
	ErrUnsupported = errors.New("unsupported configuration")
	// ErrConfig marks an inconsistent or incomplete setup input
	ErrConfig = errors.New("invalid configuration")
	// ErrInvalidGeometry marks elements with a vanishing or sign changing Jacobian
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrNotConverged is returned by iterative solvers that exhaust their budget
	ErrNotConverged = errors.New("solver did not converge")
	// ErrSingular marks a system matrix whose factorization failed
	ErrSingular = errors.New("singular system")
	// ErrComm marks a failure of the communication collaborator
	ErrComm = errors.New("communication failure")
)
