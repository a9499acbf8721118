// The main package for the cefrgen executable.
package main

import (
	"github.com/JakeFAU/cefr-dataset/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
