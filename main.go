// Package main is the entry point for redeploy.
//
// redeploy pulls the latest revision of a service's working copy, installs its
// dependencies, restarts it and verifies it is active. See the cli package
// for the command tree.
package main

import "redeploy/internal/cli"

func main() {
	cli.Execute()
}
