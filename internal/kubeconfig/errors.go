package kubeconfig

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the kubeconfig file does not exist.
var ErrNotFound = errors.New("kubeconfig file not found")

// ParseError indicates the kubeconfig file exists but could not be
// deserialized.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse kubeconfig %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError indicates persisting the kubeconfig failed. The original
// file on disk is guaranteed to be untouched.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write kubeconfig %q: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// DanglingReferenceError reports a context whose cluster or user
// reference does not resolve within the document.
type DanglingReferenceError struct {
	Context string
	Kind    string // "cluster" or "user"
	Name    string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("context %q references unknown %s %q", e.Context, e.Kind, e.Name)
}
