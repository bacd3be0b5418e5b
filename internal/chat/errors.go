// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalState matches every *IllegalStateError.
	ErrIllegalState = errors.New("chat: operation not allowed in current state")

	// ErrClosed is returned by requests made after Close.
	ErrClosed = errors.New("chat: session closed")

	// ErrEmptyPrompt is returned by RequestGenerate for a blank prompt.
	ErrEmptyPrompt = errors.New("chat: empty prompt")

	// ErrVisionUnsupported is returned when an image is offered to a
	// model that does not accept images.
	ErrVisionUnsupported = errors.New("chat: model does not accept images")

	// ErrInsufficientMemory is wrapped by reloads refused for lack of memory.
	ErrInsufficientMemory = errors.New("chat: insufficient memory for model")

	// ErrUnsupportedImage is returned for image data that is not PNG,
	// JPEG, GIF or WebP.
	ErrUnsupportedImage = errors.New("chat: unsupported image format")
)

// IllegalStateError rejects a request made from a state that does not
// allow it. The session is left unchanged.
type IllegalStateError struct {
	Op    string
	State State
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("chat: %s not allowed in state %s", e.Op, e.State)
}

// Is makes errors.Is(err, ErrIllegalState) true.
func (e *IllegalStateError) Is(target error) bool {
	return target == ErrIllegalState
}
