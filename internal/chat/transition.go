// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// event is an input to the state machine.
type event int

const (
	evGenerate event = iota
	evGenerateDone
	evGenerateFailed
	evReset
	evResetDone
	evReload
	evLoadStart
	evLoadDone
	evLoadFailed
	evInsufficientMemory
	evTerminate
	evTerminateDone
	evAwaitImage
	evAttachImage
	evImageDone
	evImageFailed
)

var eventNames = [...]string{
	evGenerate:           "generate",
	evGenerateDone:       "generate-done",
	evGenerateFailed:     "generate-failed",
	evReset:              "reset",
	evResetDone:          "reset-done",
	evReload:             "reload",
	evLoadStart:          "load-start",
	evLoadDone:           "load-done",
	evLoadFailed:         "load-failed",
	evInsufficientMemory: "insufficient-memory",
	evTerminate:          "terminate",
	evTerminateDone:      "terminate-done",
	evAwaitImage:         "await-image",
	evAttachImage:        "attach-image",
	evImageDone:          "image-done",
	evImageFailed:        "image-failed",
}

func (e event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// effect is work the session goroutine performs after a transition.
type effect int

const (
	effStream effect = iota
	effResetEngine
	effReloadEngine
	effUnloadEngine
	effProcessImage
)

// transition is the complete table of legal state changes. It has no side
// effects: the caller applies the returned state under the session lock
// and queues the effects for the session goroutine.
//
// Completion events for work that was superseded (a generation finishing
// after a reset was requested) leave the state unchanged without error;
// the superseding request's own epilogue moves the state on.
func transition(from State, ev event) (State, []effect, error) {
	switch ev {
	case evGenerate:
		if from.Chattable() {
			return StateGenerating, []effect{effStream}, nil
		}

	case evGenerateDone:
		if from == StateGenerating {
			return StateReady, nil, nil
		}
		return from, nil, nil

	case evGenerateFailed:
		if from == StateGenerating {
			return StateError, nil, nil
		}
		return from, nil, nil

	case evReset:
		if from.Resettable() {
			return StateResetting, []effect{effResetEngine}, nil
		}

	case evResetDone:
		if from == StateResetting {
			return StateReady, nil, nil
		}

	case evReload:
		if from.Reloadable() {
			return StateReloading, []effect{effReloadEngine}, nil
		}

	case evLoadStart:
		if from == StateReloading {
			return StateLoading, nil, nil
		}

	case evLoadDone:
		if from == StateLoading {
			return StateReady, nil, nil
		}

	case evLoadFailed:
		if from == StateReloading || from == StateLoading {
			return StateError, nil, nil
		}

	case evInsufficientMemory:
		if from == StateReloading {
			return StateFailed, nil, nil
		}

	case evTerminate:
		if from.Interruptible() {
			return StateTerminating, []effect{effUnloadEngine}, nil
		}

	case evTerminateDone:
		if from == StateTerminating {
			return StateReady, nil, nil
		}

	case evAwaitImage:
		if from == StateReady {
			return StatePendingImageUpload, nil, nil
		}

	case evAttachImage:
		if from.Uploadable() {
			return StateProcessingImage, []effect{effProcessImage}, nil
		}

	case evImageDone:
		if from == StateProcessingImage {
			return StateReady, nil, nil
		}

	case evImageFailed:
		if from == StateProcessingImage {
			return StateFailed, nil, nil
		}
	}

	return from, nil, &IllegalStateError{Op: ev.String(), State: from}
}
