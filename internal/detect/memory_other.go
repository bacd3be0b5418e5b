// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !linux && !darwin

package detect

import "context"

func querySystem(ctx context.Context) (Reading, error) {
	return Reading{}, ErrUnsupported
}
