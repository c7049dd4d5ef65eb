// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strconv"
	"sync/atomic"
)

var sequence atomic.Uint64

// UniqueID returns prefix joined to a number no other call in this
// test binary has returned, for ids that must not collide across
// parallel tests.
//
//	callID := testutil.UniqueID("call") // "call_1", "call_2", ...
func UniqueID(prefix string) string {
	return prefix + "_" + strconv.FormatUint(sequence.Add(1), 10)
}
