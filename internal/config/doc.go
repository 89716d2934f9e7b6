// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package config provides configuration loading, merging, and validation
// facilities for the application.
//
// Configuration is assembled from two sources, in priority order (a later
// source only fills fields an earlier source left zero):
//  1. Environment variables
//  2. Command-line flags
//
// The entry point is [GetStructuredConfig].
package config
