// The main package for the pagemark executable.
package main

import (
	"github.com/JakeFAU/pagemark/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
