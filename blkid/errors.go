// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"errors"
	"fmt"
)

// Error taxonomy.
//
// Errors returned by the package wrap one of these, so they can be checked with errors.Is.
// I/O errors additionally wrap the underlying system error.
var (
	ErrArgument  = errors.New("invalid argument")
	ErrIO        = errors.New("I/O error")
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous result")
	ErrState     = errors.New("invalid state")
)

// Refined errors.
var (
	ErrOutOfRange  = fmt.Errorf("%w: index out of range", ErrArgument)
	ErrUnsupported = fmt.Errorf("%w: operation is not supported", ErrState)
	ErrFailedLock  = fmt.Errorf("%w: failed to acquire shared lock while probing blockdevice", ErrIO)
)

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
