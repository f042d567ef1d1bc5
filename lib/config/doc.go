// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the paseo relay and daemon.
//
// Configuration comes from a single file named by the PASEO_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no search path and no per-field environment
// override. Files ending in .json or .jsonc are JSON with comments and
// trailing commas; anything else is YAML. Both decode through the same
// YAML decoder, so durations are written as strings ("10s") in either.
//
// Path fields are expanded after loading: ${HOME} and ${VAR:-default}
// patterns resolve against the environment.
//
// Key exports:
//
//   - [Config] -- Relay and Daemon sections
//   - [Default] -- the values every loaded file is merged over
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other paseo packages.
package config
