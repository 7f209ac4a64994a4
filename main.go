// The main package for the engine-proxy executable.
package main

import "github.com/JakeFAU/engine-proxy/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
