package main

import (
	"os"

	"github.com/leefowlercu/cmxbatch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
