// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package eventbus carries workflow lifecycle events between the workflow
// engine, agents, and the submission manager. MemoryBus serves a single
// process; RedisBus spans processes.
package eventbus
