// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Panelstat - R3-MS-KP status register monitor and checklist tester
//

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/panelstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
