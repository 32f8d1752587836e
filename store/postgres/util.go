package postgres

import (
	"errors"
	"time"

	"github.com/entativa/id/errs"
)

// nowFunc is overridden in tests that need a deterministic created_at.
var nowFunc = func() time.Time { return time.Now().UTC() }

// isNotFound reports whether err is the "record not found" Input error
// base.get produces for sql.ErrNoRows.
func isNotFound(err error) bool {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Kind == errs.Input && e.Message == "record not found"
	}
	return false
}
