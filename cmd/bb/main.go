// Package main provides the bb CLI.
package main

import "github.com/jasonwhite/brilliant-build/internal/cli"

func main() {
	cli.Execute()
}
