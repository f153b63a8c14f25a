// Package slicealg normalizes and composes index descriptors without touching
// any data.
//
// A descriptor is an ordered list of integers and slices addressing the
// leading axes of an array. The central operation is ComposeDescriptor: given
// that a view was built as source[outer] and a caller then asks for
// view[inner], it produces the single descriptor that reads the same elements
// straight from source. This is what lets a chain of nested lazy views reach
// the underlying file or socket with exactly one request.
//
// Negative steps are rejected with apperr.ErrUnsupportedSlice. Reverse
// iteration is not part of the algebra.
package slicealg
