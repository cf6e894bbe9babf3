// Package display defines how renderers observe the timer and provides the
// headless backend.
package display

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/verte-zerg/wlsplit/internal/model"
)

// SnapshotSource provides read-only views of the timer.
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// Renderer presents snapshots until ctx is cancelled or the user quits.
type Renderer interface {
	Run(ctx context.Context) error
}

// Kind selects a display backend.
type Kind string

const (
	KindTerminal Kind = "terminal"
	KindHeadless Kind = "headless"
)

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTerminal, KindHeadless:
		return Kind(s), nil
	case "":
		return KindTerminal, nil
	default:
		return "", fmt.Errorf("%w: unknown display %q (expected terminal or headless)", model.ErrConfig, s)
	}
}

// CheckSurface reports whether kind can draw to out. Headless needs nothing;
// the terminal backend needs a TTY.
func CheckSurface(kind Kind, out *os.File) error {
	if kind == KindHeadless {
		return nil
	}
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return fmt.Errorf("%w: %s display requires a terminal", model.ErrSurface, kind)
	}
	return nil
}
