// Package failure holds the error classes folio reports to its callers.
//
// Each class carries a stable code. Everything except StorageUnavailable is
// a business error the caller can act on; storage errors mean the object
// store could not be reached or returned garbage. Nothing in folio retries
// on its own.
package failure

import (
	"strings"

	"github.com/zeebo/errs"

	"github.com/ndlib/folio/store"
)

var (
	// Validation means the request was malformed or did not fit the schema.
	Validation = errs.Class("validation")
	// NotFound means some link in the stub, pointer, snapshot chain is missing.
	NotFound = errs.Class("not found")
	// Forbidden means the policy denied the principal.
	Forbidden = errs.Class("forbidden")
	// InvalidTransition means the action is not allowed from the current status.
	InvalidTransition = errs.Class("invalid transition")
	// Conflict means an edit of a non-draft entity, or a stale expected version.
	Conflict = errs.Class("conflict")
	// StorageUnavailable wraps I/O failures from the object store.
	StorageUnavailable = errs.Class("storage unavailable")
)

// Stable codes returned by CodeOf.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeConflict           = "CONFLICT"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

var codes = []struct {
	class *errs.Class
	code  string
}{
	{&Validation, CodeValidation},
	{&NotFound, CodeNotFound},
	{&Forbidden, CodeForbidden},
	{&InvalidTransition, CodeInvalidTransition},
	{&Conflict, CodeConflict},
	{&StorageUnavailable, CodeStorageUnavailable},
}

// CodeOf returns the stable code for err, or CodeInternal if err belongs to
// none of the classes. CodeOf(nil) is "".
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if c.class.Has(err) {
			return c.code
		}
	}
	return CodeInternal
}

// Recoverable reports whether err is a business error that the caller can
// correct. Storage and unclassified errors are not.
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case CodeStorageUnavailable, CodeInternal:
		return false
	}
	return true
}

// Storage converts an error from the object store. A missing key becomes
// NotFound, anything else StorageUnavailable. what names the thing being
// read, e.g. "entity abc1234".
func Storage(err error, what string) error {
	if err == nil {
		return nil
	}
	if store.IsNotExist(err) {
		return NotFound.New("%s", what)
	}
	return StorageUnavailable.Wrap(err)
}

// FromCode rebuilds an error reported by a remote folio server from its code
// and message. Unknown codes give an unclassified error.
func FromCode(code, message string) error {
	for _, c := range codes {
		if c.code == code {
			return c.class.New("%s", strings.TrimPrefix(message, string(*c.class)+": "))
		}
	}
	return errs.New("%s: %s", code, message)
}
