// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of Paseo binaries.
//
// Four variables are injected at build time via -ldflags -X:
//
//	go build -ldflags "-X github.com/paseo-dev/paseo/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" and "0.1.0-dev" in development builds and
// test runs. The relay reports [Short] in its health body; every
// binary prints [Full] for --version.
package version
