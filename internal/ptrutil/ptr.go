// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package ptrutil has helpers for the optional (pointer) fields of server and
// topology descriptions.
package ptrutil

// Ptr will return the memory location of the given value.
func Ptr[T any](val T) *T {
	return &val
}

// CompareUint32 orders two optional values. It returns 2 if only b is absent,
// -2 if only a is absent, and otherwise 1, 0 or -1 as *a is greater than,
// equal to or less than *b. Two absent values are equal.
func CompareUint32(a, b *uint32) int {
	switch {
	case a == nil && b == nil:
		return 0
	case b == nil:
		return 2
	case a == nil:
		return -2
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	}
	return 0
}

// MinInt64 returns the smaller of two optional values. A nil operand makes the
// result nil: an absent value means the minimum is undefined.
func MinInt64(a, b *int64) *int64 {
	if a == nil || b == nil {
		return nil
	}
	if *a < *b {
		return Ptr(*a)
	}
	return Ptr(*b)
}
