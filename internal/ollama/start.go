// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// readyPollInterval spaces health checks while a server starts.
const readyPollInterval = 500 * time.Millisecond

// waitReady polls CheckRunning until the server answers or timeout passes.
func (c *Client) waitReady(ctx context.Context, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(readyPollInterval), 1)
	start := time.Now()
	var lastErr error

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		checkCtx, checkCancel := context.WithTimeout(ctx, readyPollInterval)
		lastErr = c.CheckRunning(checkCtx)
		checkCancel()

		if lastErr == nil {
			c.logger.Info("ollama started", "elapsed", time.Since(start).Round(100*time.Millisecond))
			return nil
		}
		c.logger.Debug("waiting for ollama", "elapsed", time.Since(start).Round(100*time.Millisecond))
	}

	return &ClientError{
		Type:    ErrTypeConnection,
		Message: fmt.Sprintf("Ollama started but not responding after %s (path: %s)", timeout, path),
		Cause:   lastErr,
	}
}
