package tui

import "github.com/go-go-golems/deployctl/pkg/dashboard"

// RenderRequestMsg carries the latest dashboard render into the program.
type RenderRequestMsg struct {
	Request dashboard.RenderRequest
}

type ActivityMsg struct {
	Entry dashboard.ActivityEntry
}

type NavigateToDeploymentMsg struct {
	ID string
}

// ActionErrorMsg reports an action that could not be handed to the loop.
type ActionErrorMsg struct {
	Request dashboard.ActionRequest
	Err     error
}
