package lifecycle

import "errors"

var (
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrUnknownRole       = errors.New("unknown dashboard role")
	ErrUnknownAction     = errors.New("unknown order action")
	ErrTransitionInvalid = errors.New("transition not allowed")
)
