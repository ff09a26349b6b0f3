//go:build mage
// +build mage

// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the ecgmon command into ./bin.
func Build() error {
	mg.Deps(Vet)
	fmt.Println("Building ecgmon...")
	return sh.RunV("go", "build", "-o", "./bin/ecgmon", "./cmd/ecgmon")
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "-timeout", "60s", "./...")
}

// TestClean runs the unit tests with no test cache.
func TestClean() error {
	if err := sh.RunV("go", "clean", "-testcache"); err != nil {
		return err
	}
	return Test()
}

// CI runs vet, test and build.
func CI() {
	mg.SerialDeps(Vet, Test, Build)
}
