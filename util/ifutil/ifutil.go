package ifutil

import (
	"reflect"
)

// IsZero returns true if the given argument is the zero value of its type, false otherwise.
func IsZero(v interface{}) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// FirstOrDefault returns the first non-zero element from the given slice or the provided default value otherwise.
// Useful for initializing optional function parameters with a default value:
//
//	func Foo(optInclude ...bool) {
//		include = FirstOrDefault(optInclude, false)
//		...
//	}
func FirstOrDefault[T any](opts []T, defaultValue T) T {
	for _, t := range opts {
		if !IsZero(t) {
			return t
		}
	}
	return defaultValue
}
