package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ndlib/folio/store"
)

func TestCodeOf(t *testing.T) {
	var table = []struct {
		err         error
		code        string
		recoverable bool
	}{
		{Validation.New("bad field %s", "x"), CodeValidation, true},
		{NotFound.New("entity"), CodeNotFound, true},
		{Forbidden.New(""), CodeForbidden, true},
		{InvalidTransition.New("approve from draft"), CodeInvalidTransition, true},
		{Conflict.New("not a draft"), CodeConflict, true},
		{StorageUnavailable.Wrap(errors.New("timeout")), CodeStorageUnavailable, false},
		{errors.New("plain"), CodeInternal, false},
		{fmt.Errorf("outer: %w", Conflict.New("inner")), CodeConflict, true},
	}
	for _, row := range table {
		code := CodeOf(row.err)
		if code != row.code {
			t.Errorf("CodeOf(%v) = %s, expected %s", row.err, code, row.code)
		}
		if Recoverable(row.err) != row.recoverable {
			t.Errorf("Recoverable(%v) = %v", row.err, !row.recoverable)
		}
	}
	if CodeOf(nil) != "" {
		t.Errorf("CodeOf(nil) = %q", CodeOf(nil))
	}
}

func TestStorage(t *testing.T) {
	if Storage(nil, "x") != nil {
		t.Errorf("Storage(nil) not nil")
	}
	err := Storage(store.ErrNotExist, "entity abc")
	if !NotFound.Has(err) {
		t.Errorf("missing key became %v", err)
	}
	io := errors.New("connection reset")
	err = Storage(io, "entity abc")
	if !StorageUnavailable.Has(err) || !errors.Is(err, io) {
		t.Errorf("io error became %v", err)
	}
}

func TestFromCode(t *testing.T) {
	err := FromCode(CodeNotFound, "not found: entity abc")
	if !NotFound.Has(err) {
		t.Errorf("Got %v, expected a NotFound error", err)
	}
	if err.Error() != "not found: entity abc" {
		t.Errorf("Got %q, expected the class prefix once", err.Error())
	}
	err = FromCode("TEAPOT", "short and stout")
	if CodeOf(err) != CodeInternal {
		t.Errorf("Got %s, expected %s", CodeOf(err), CodeInternal)
	}
}
