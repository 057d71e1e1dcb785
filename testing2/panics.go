// Package testing2 has assertions that the standard testing package lacks.
package testing2

import (
	"fmt"
	"testing"
)

// Call f and return the value it panicked with, if any.
func callAndRecover(f func()) (r interface{}, panicked bool) {
	panicked = true
	defer func() {
		if panicked {
			r = recover()
		}
	}()
	f()
	panicked = false
	return nil, false
}

// AssertPanicsWith calls the given function and checks that it panics with the given value.
func AssertPanicsWith(t *testing.T, f func(), expectedRecover interface{}) {
	t.Helper()
	r, panicked := callAndRecover(f)
	if !panicked {
		t.Fatalf("Expected panic: %v; got nothing!", expectedRecover)
	}
	if r != expectedRecover {
		t.Fatalf("Expected panic: %v; got: %v", expectedRecover, r)
	}
}

// AssertPanicsWithString calls the given function and checks that it panics with
// a value that formats to the given string. Errors format to their message.
func AssertPanicsWithString(t *testing.T, f func(), expectedRecover string) {
	t.Helper()
	r, panicked := callAndRecover(f)
	if !panicked {
		t.Fatalf("Expected panic: %v; got nothing!", expectedRecover)
	}
	if s := fmt.Sprintf("%v", r); s != expectedRecover {
		t.Fatalf("Expected panic: %v; got: %v", expectedRecover, s)
	}
}
