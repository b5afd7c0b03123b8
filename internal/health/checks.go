package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SceneReady passes when the scene holds at least one object or a host is
// connected to supply one.
func SceneReady(objects func() int, hostConnected func() bool) Checker {
	return Checker{Name: "scene", Check: func(context.Context) error {
		if objects() > 0 || (hostConnected != nil && hostConnected()) {
			return nil
		}
		return errors.New("no scene objects and no host connected")
	}}
}

// ModelAvailable passes while at least one model backend accepts calls.
// states maps backend names to their breaker state names.
func ModelAvailable(states func() map[string]string) Checker {
	return Checker{Name: "model", Check: func(context.Context) error {
		st := states()
		if len(st) == 0 {
			return errors.New("no model provider configured")
		}
		var open []string
		for name, s := range st {
			if s == "open" {
				open = append(open, name)
			}
		}
		if len(open) < len(st) {
			return nil
		}
		slices.Sort(open)
		return fmt.Errorf("breaker open for %s", strings.Join(open, ", "))
	}}
}

// LoopRunning passes while the orchestrator loop has not stopped.
func LoopRunning(state func() string) Checker {
	return Checker{Name: "agent", Check: func(context.Context) error {
		if s := state(); s == "cancelled" {
			return errors.New("orchestrator loop stopped")
		}
		return nil
	}}
}
