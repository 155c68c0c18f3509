// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

// Package errutil provides helpers for working with oops errors.
package errutil

import "github.com/samber/oops"

// HasCode reports whether err is an oops error carrying the given code.
func HasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}
