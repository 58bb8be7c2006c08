package recovery

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
)

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: ClassTransient,
		},
		{
			name: "context cancelled",
			err:  context.Canceled,
			want: ClassTransient,
		},
		{
			name: "bad connection",
			err:  driver.ErrBadConn,
			want: ClassTransient,
		},
		{
			name: "busy database",
			err:  sqlite3.Error{Code: sqlite3.ErrBusy},
			want: ClassTransient,
		},
		{
			name: "auth failure",
			err:  sqlite3.Error{Code: sqlite3.ErrAuth},
			want: ClassTransient,
		},
		{
			name: "cannot open database",
			err:  sqlite3.Error{Code: sqlite3.ErrCantOpen},
			want: ClassTransient,
		},
		{
			name: "unique violation",
			err:  sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique},
			want: ClassDuplicate,
		},
		{
			name: "primary key violation",
			err:  sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey},
			want: ClassDuplicate,
		},
		{
			name: "not null violation",
			err:  sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull},
			want: ClassStatement,
		},
		{
			name: "sql logic error",
			err:  sqlite3.Error{Code: sqlite3.ErrError},
			want: ClassStatement,
		},
		{
			name: "unknown error defaults to transient",
			err:  errors.New("the wire caught fire"),
			want: ClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(2, tt.err)
			if got.Class != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got.Class, tt.want)
			}
			if got.Node != 2 {
				t.Errorf("Classify node = %d, want 2", got.Node)
			}
		})
	}
}

func TestClassify_WrappedErrorsPassThrough(t *testing.T) {
	orig := NewWriteError(ClassStatement, 3, errors.New("syntax error"))
	wrapped := fmt.Errorf("apply: %w", orig)

	got := Classify(9, wrapped)
	if got != orig {
		t.Errorf("expected the original WriteError back, got %v", got)
	}
}

func TestClassPredicates(t *testing.T) {
	transient := fmt.Errorf("outer: %w", NewWriteError(ClassTransient, 1, errors.New("down")))
	if !IsTransient(transient) {
		t.Error("IsTransient should see through wrapping")
	}
	if IsStatement(transient) || IsDuplicate(transient) || IsStorage(transient) {
		t.Error("class predicates overlap")
	}

	if IsTransient(errors.New("plain")) {
		t.Error("unclassified errors should not satisfy IsTransient")
	}
}

func TestWriteError_Error(t *testing.T) {
	e := NewWriteError(ClassTransient, 2, errors.New("no route"))
	want := "TRANSIENT: node 2: no route"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	noNode := NewWriteError(ClassStorage, 0, errors.New("log gone"))
	want = "STORAGE: log gone"
	if noNode.Error() != want {
		t.Errorf("Error() = %q, want %q", noNode.Error(), want)
	}
}

func TestStatus_ValidAndTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusCompleted, StatusFailed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("LIMBO").Valid() {
		t.Error("unknown status should be invalid")
	}

	if StatusPending.Terminal() {
		t.Error("PENDING is not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Error("COMPLETED and FAILED are terminal")
	}
}
