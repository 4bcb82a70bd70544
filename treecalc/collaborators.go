package treecalc

import (
	"context"
	"errors"
)

// ErrNothingSelected is returned by a FilePicker when the user dismisses it
var ErrNothingSelected = errors.New("nothing selected")

// Prompt describes a yes/no question put to the user
type Prompt struct {
	Title        string
	Message      string
	ConfirmLabel string
	CancelLabel  string
}

// Confirmer asks the user to confirm a destructive edit
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer
type ConfirmerFunc func(ctx context.Context, p Prompt) (bool, error)

// Confirm implements Confirmer
func (f ConfirmerFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// FilePicker lets the user choose a file to open or a path to save to
type FilePicker interface {
	PickOpen(ctx context.Context, title string) (string, error)
	PickSave(ctx context.Context, title, suggested string) (string, error)
}

// clearChildrenPrompt is shown before turning a composite with children into a leaf
var clearChildrenPrompt = Prompt{
	Title:        "Clear children",
	Message:      "This item still has children. Remove all of them?",
	ConfirmLabel: "Remove",
	CancelLabel:  "Cancel",
}
