package bootstrap

import (
	"fmt"
	"strings"
	"testing"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

func TestHolderReportsNotReadyBeforeInitialization(t *testing.T) {
	holder := NewHolder()

	app, err := holder.Ready()
	if app != nil {
		t.Fatalf("expected no app before initialization")
	}
	if !domain.IsKind(err, domain.ErrNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}

func TestHolderExposesInitializationFailure(t *testing.T) {
	holder := NewHolder()
	holder.initErr.Store(&initFailure{err: fmt.Errorf("postgres unreachable")})

	_, err := holder.Ready()
	if !domain.IsKind(err, domain.ErrNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "postgres unreachable") {
		t.Fatalf("expected cause in error, got %v", err)
	}
}

func TestHolderReturnsAppOncePublished(t *testing.T) {
	holder := NewHolder()
	want := &App{}
	holder.app.Store(want)

	app, err := holder.Ready()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app != want {
		t.Fatalf("expected the published app")
	}
}
