package db

import (
	"context"
	"errors"
	"testing"
)

func TestOpenRejectsEmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	if !errors.Is(err, ErrEmptyURL) {
		t.Fatalf("Open() error = %v, want ErrEmptyURL", err)
	}
}
