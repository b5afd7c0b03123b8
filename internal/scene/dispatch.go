package scene

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/stagehand/internal/action"
)

var _ Dispatcher = (*LocalDispatcher)(nil)

// LocalDispatcher executes commands against the store itself. A "move"
// command with a "destination" argument updates the object's position;
// every other command is acknowledged and logged. It stands in for a host
// when none is connected.
type LocalDispatcher struct {
	store *Store
}

// Dispatch implements [Dispatcher].
func (d *LocalDispatcher) Dispatch(ctx context.Context, cmd action.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if dest, ok := cmd.Args["destination"]; ok {
		pos, err := Vector3FromAny(dest)
		if err != nil {
			return fmt.Errorf("scene: %s %q: %w", cmd.Action, cmd.Target, err)
		}
		return d.store.SetPosition(cmd.Target, pos)
	}

	slog.Info("scene: command", "action", cmd.Action, "target", cmd.Target, "args", cmd.Args)
	return nil
}
