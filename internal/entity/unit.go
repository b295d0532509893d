package entity

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidUnit = errors.New("invalid crawling unit")

// ResponsePredicate reports whether a response means the proxy that served it is blocked.
type ResponsePredicate func(resp *http.Response) bool

// Unit is the per-target configuration supplied by a crawling unit when it opens.
type Unit struct {
	Name          string
	TargetID      string
	Algorithm     Algorithm
	Filters       Filters
	CheckResponse ResponsePredicate
}

// DefaultUnit returns a Unit with the documented defaults:
// length 10, no profile, empty location/type/provider filters, random selection.
func DefaultUnit(name, targetID string) Unit {
	return Unit{
		Name:      name,
		TargetID:  targetID,
		Algorithm: AlgorithmRandom,
		Filters:   Filters{Length: DefaultLength},
	}
}

func (u Unit) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUnit)
	}
	if u.TargetID == "" {
		return fmt.Errorf("%w: unit %q has no target id", ErrInvalidUnit, u.Name)
	}
	return nil
}
