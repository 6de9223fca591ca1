package keyexport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilMaster is returned when an export is requested without master
	// key material.
	ErrNilMaster = errors.New("master key material required")

	// ErrNoMasterForCurve is returned by a MasterKeySource that holds no
	// key for the requested curve.
	ErrNoMasterForCurve = errors.New("no master key for curve")
)

// ItemFailure records why one item of a batch export is incomplete.
type ItemFailure struct {
	// Index is the position of the item in the returned slice.
	Index int

	// Name is the display name of the item.
	Name string

	// Err is the cause. It never contains key material.
	Err error
}

// Error returns a description of the failure.
func (f *ItemFailure) Error() string {
	return fmt.Sprintf("item %d (%s): %v", f.Index, f.Name, f.Err)
}

// Unwrap returns the cause of the failure.
func (f *ItemFailure) Unwrap() error {
	return f.Err
}

// PartialFailure is returned by a batch export in which at least one item
// could not be derived or encoded. Items holds every item, complete or not,
// so callers can show the successful ones and flag the rest.
type PartialFailure struct {
	// Items is the full result of the export.
	Items []ExportedKeyItem

	// Failures lists the incomplete items in order.
	Failures []*ItemFailure
}

// Error summarizes the failures.
func (p *PartialFailure) Error() string {
	names := make([]string, 0, len(p.Failures))
	for _, f := range p.Failures {
		names = append(names, f.Name)
	}

	return fmt.Sprintf("export incomplete for %d of %d items: %s",
		len(p.Failures), len(p.Items), strings.Join(names, ", "))
}

// Unwrap exposes every item failure so errors.Is and errors.As see the
// individual causes.
func (p *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(p.Failures))
	for _, f := range p.Failures {
		errs = append(errs, f)
	}

	return errs
}
