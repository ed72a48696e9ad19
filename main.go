// The main package for the seo-orchestrator executable.
package main

import (
	"github.com/JakeFAU/seo-orchestrator/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
