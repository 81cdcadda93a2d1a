// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for piilink using Mage.
//
// Usage:
//
//	mage build       Compile the piilink binary to bin/
//	mage test:all    Run every test
//	mage test:short  Run tests without the slower watch and store cases
//	mage test:cover  Run every test and write coverage.out
//	mage lint        Run go vet and golangci-lint
//	mage clean       Remove build artifacts
//	mage install     Install piilink to GOPATH/bin
package main

const (
	binGo      = "go"
	binaryName = "piilink"
	binaryDir  = "bin"
	cmdDir     = "./cmd/piilink"
	modulePath = "github.com/mesh-intelligence/piilink"
)
