// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the paseo binary.
//
// A [Command] is a node in a tree: either a group that dispatches on
// its first positional argument, or a leaf with a pflag flag set and a
// Run function. Unknown commands and flags are answered with an edit
// distance suggestion and a pointer to --help. Run receives a logger
// from [NewCommandLogger] scoped to the command path.
package cli
