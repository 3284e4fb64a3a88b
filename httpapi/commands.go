package httpapi

import (
	"fmt"

	"github.com/martinemde/vibeloop/engine"
)

// ControlAction is the closed set of loop control instructions.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
)

// ControlCommand is the inbound pause/resume instruction.
type ControlCommand struct {
	Action ControlAction `json:"action"`
}

// Validate checks the action against the closed set.
func (c ControlCommand) Validate() error {
	switch c.Action {
	case ActionPause, ActionResume:
		return nil
	default:
		return fmt.Errorf("unknown control action %q", c.Action)
	}
}

// PromptCommand is an inbound routed prompt from the UI.
type PromptCommand struct {
	Actor   engine.Actor         `json:"actor"`
	RouteTo engine.Target        `json:"route_to"`
	Content []engine.ContentPart `json:"content"`
}

// Validate checks every discriminator exhaustively; a command with an
// unknown actor, target, or part type is rejected.
func (c PromptCommand) Validate() error {
	if c.Actor != engine.ActorUser {
		return fmt.Errorf("prompt actor must be %q, got %q", engine.ActorUser, c.Actor)
	}
	switch c.RouteTo {
	case engine.TargetVision, engine.TargetCode:
	default:
		return fmt.Errorf("unknown route target %q", c.RouteTo)
	}
	if len(c.Content) == 0 {
		return fmt.Errorf("prompt content is empty")
	}
	for i, part := range c.Content {
		if err := part.Validate(); err != nil {
			return fmt.Errorf("content part %d: %w", i, err)
		}
	}
	return nil
}
