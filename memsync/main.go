// Package main is the memsync command.
package main

import "github.com/sarchlab/memsync/memsync/cmd"

func main() {
	cmd.Execute()
}
