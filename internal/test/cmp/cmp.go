// Package cmp wraps go-cmp with the options the tests compare with.
package cmp

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Nil and empty slices and maps are equal, errors compare with errors.Is
// and unexported fields are compared.
var options = []cmp.Option{
	cmpopts.EquateErrors(),
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Diff returns a human readable diff between v1 and v2, or "" if they
// are equal.
func Diff(v1, v2 interface{}) string {
	return cmp.Diff(v1, v2, options...)
}
