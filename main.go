// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/droidpack/droidpack/cmd/droidpack"

func main() {
	cmd.Execute()
}
