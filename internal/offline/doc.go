// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline decides whether an inference server address keeps
// prompts on this machine.
//
// With engine.local_only set, only loopback hosts are accepted so that
// study material never leaves the device. The policy is a plain value
// passed to whoever needs it.
//
// Usage:
//
//	policy := offline.Policy{LocalOnly: true}
//	if err := policy.CheckURL("http://10.0.0.5:11434"); err != nil {
//		// errors.Is(err, offline.ErrNonLocalhost)
//	}
package offline
