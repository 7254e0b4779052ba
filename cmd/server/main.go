package main

import (
	_ "time/tzdata"

	"github.com/BreederHQ/server/cmd/server/cmd"
)

func main() {
	cmd.Execute()
}
