package types

import (
	"fmt"
)

// ErrorKind tells the mission engine how a vehicle call failed.
type ErrorKind uint8

const (
	ErrorKindConnection ErrorKind = iota
	ErrorKindRejected
	ErrorKindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnection:
		return "connection"
	case ErrorKindRejected:
		return "rejected"
	case ErrorKindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// VehicleError is returned by every flight controller operation.
type VehicleError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *VehicleError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *VehicleError) Unwrap() error {
	return e.Err
}

func NewVehicleError(op string, kind ErrorKind, err error) error {
	return &VehicleError{op, kind, err}
}
