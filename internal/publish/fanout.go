package publish

import (
	"errors"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
)

// Fanout sends every update to all of its publishers.
type Fanout []accessory.StatePublisher

// Publish delivers u to each publisher and joins their errors.
func (f Fanout) Publish(u accessory.Update) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget passes deviceID to every publisher that keeps per-device state.
func (f Fanout) Forget(deviceID string) error {
	var errs []error
	for _, p := range f {
		if fg, ok := p.(interface{ Forget(string) error }); ok {
			if err := fg.Forget(deviceID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
