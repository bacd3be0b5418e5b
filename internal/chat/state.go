// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// State is the session state.
type State int

const (
	StateNotLoaded State = iota
	StateLoading
	StateReady
	StateGenerating
	StateResetting
	StateReloading
	StateTerminating
	StateFailed
	StatePendingImageUpload
	StateProcessingImage
	// StateError carries a reason, available from Session.ErrorMessage.
	StateError
)

var stateNames = [...]string{
	StateNotLoaded:          "NotLoaded",
	StateLoading:            "Loading",
	StateReady:              "Ready",
	StateGenerating:         "Generating",
	StateResetting:          "Resetting",
	StateReloading:          "Reloading",
	StateTerminating:        "Terminating",
	StateFailed:             "Failed",
	StatePendingImageUpload: "PendingImageUpload",
	StateProcessingImage:    "ProcessingImage",
	StateError:              "Error",
}

// String returns the state name.
func (s State) String() string {
	if !s.Valid() {
		return "Unknown"
	}
	return stateNames[s]
}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	return s >= StateNotLoaded && s <= StateError
}

// Chattable reports whether a generation may start.
func (s State) Chattable() bool {
	return s == StateReady
}

// Interruptible reports whether a terminate may be requested.
func (s State) Interruptible() bool {
	switch s {
	case StateReady, StateGenerating, StateFailed, StatePendingImageUpload:
		return true
	}
	return false
}

// Resettable reports whether a reset may be requested.
func (s State) Resettable() bool {
	return s == StateReady || s == StateGenerating
}

// Uploadable reports whether an image may be attached.
func (s State) Uploadable() bool {
	return s == StatePendingImageUpload
}

// Reloadable reports whether a reload may be requested: any interruptible
// state, plus the first load and recovery after a backend error.
func (s State) Reloadable() bool {
	return s.Interruptible() || s == StateNotLoaded || s == StateError
}

// Busy reports whether the session is between a prologue and its epilogue.
func (s State) Busy() bool {
	switch s {
	case StateLoading, StateGenerating, StateResetting, StateReloading, StateTerminating, StateProcessingImage:
		return true
	}
	return false
}
