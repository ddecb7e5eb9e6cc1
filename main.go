// Package main is the entry point for the dsgate application
package main

import (
	"github.com/harborkv/dsgate/cmd"
)

func main() {
	cmd.Execute()
}
