// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat session,
// the inference backends and the transcript store.
//
// # Key Types
//
//   - Message: a display message with role, content and timestamp
//   - Identity: the model a session is bound to (ID, lib, path, resource estimate)
//   - Catalog: the set of models the user has configured
//   - Statistics: timing and token counts for one generation
//
// # Usage
//
//	cat := model.NewCatalog(identities...)
//	id, ok := cat.Lookup("llama3.2-3b")
//	if !ok {
//	    return model.ErrUnknownModel
//	}
package model
