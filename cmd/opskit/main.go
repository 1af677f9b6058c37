package main

import "github.com/sidereal-labs/opskit/internal/cli"

func main() {
	cli.Execute()
}
