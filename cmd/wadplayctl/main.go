// The wadplayctl command provides a command-line interface for operating
// a wadplayd ad runtime.
package main

import "github.com/wrale/wrale-adplay/internal/wadplayctl/cmd"

func main() {
	cmd.Execute()
}
