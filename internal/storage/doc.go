// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a transcript of committed chat turns in SQLite.
//
// Only turns that made it into a session's history are recorded: a
// generation that was reset, reloaded or terminated away never reaches
// the store. Pruning the in-memory history does not touch the transcript.
//
// # Usage
//
//	store, err := storage.Open(ctx, cfg.Storage.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	s := chat.New(client, chat.WithObserver(storage.NewRecorder(store, logger)))
//
// List and load transcripts:
//
//	metas, err := store.List(ctx, 20)
//	tr, err := store.Load(ctx, metas[0].ID)
//	fmt.Print(tr.ExportMarkdown())
package storage
