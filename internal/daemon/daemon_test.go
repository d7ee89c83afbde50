package daemon

import (
	"context"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestModuleGraph(t *testing.T) {
	// Validates the dependency graph without starting the app (no lock,
	// no cache file, no network).
	if err := fx.ValidateApp(Module(Params{SessionName: "test"})); err != nil {
		t.Fatalf("invalid fx graph: %v", err)
	}
}

func TestThreadsOpenRequiresIDs(t *testing.T) {
	threads := &Threads{logger: zap.NewNop()}

	if _, err := threads.Open(context.Background(), "", "peer"); err == nil {
		t.Fatal("expected error for empty conversation id")
	}
	if _, err := threads.Open(context.Background(), "conv", ""); err == nil {
		t.Fatal("expected error for empty peer id")
	}
}
