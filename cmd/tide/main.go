// Command tide is a terminal chat client for opencode-style agent backends.
package main

import "github.com/tide-dev/tide/internal/cli"

func main() {
	cli.Execute()
}
