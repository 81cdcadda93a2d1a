// Package main provides the piilink CLI.
package main

import "github.com/mesh-intelligence/piilink/internal/cli"

func main() {
	cli.Execute()
}
