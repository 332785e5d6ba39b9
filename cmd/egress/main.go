// Package main provides the egress CLI: validate application manifests,
// resolve their variables, and check destinations against a component's
// outbound policy.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
