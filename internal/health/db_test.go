package health

import (
	"database/sql"
	"testing"
)

func TestDBCheckerHoldsHandle(t *testing.T) {
	db := &sql.DB{}

	checker := NewDBChecker(db)
	if checker.db != db {
		t.Error("checker does not hold the provided handle")
	}
}
