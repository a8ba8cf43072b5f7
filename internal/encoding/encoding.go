// Package encoding provides raw byte views of fixed-layout key values.
//
// Views alias the memory of the values they are taken from and use the
// native byte order, so data written through them is only portable between
// machines of the same architecture. Types viewed this way must not contain
// pointers; use HasPointers to check before relying on a view.
package encoding

import (
	"reflect"
	"unsafe"
)

// Bytes returns the in-memory representation of *v as a byte slice that
// aliases v.
func Bytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// SliceBytes returns the in-memory representation of s as one contiguous
// byte slice aliasing its elements. An empty s yields nil.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), uintptr(len(s))*unsafe.Sizeof(zero))
}

// Size returns the in-memory size of a T value in bytes.
func Size[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// HasPointers reports whether values of type t contain any pointers, either
// directly or through nested arrays and structs.
func HasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && HasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if HasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		// Uintptr is treated as a pointer: its value is only meaningful in
		// the address space that produced it.
		return true
	}
}
