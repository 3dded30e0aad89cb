package main

import (
	"os"

	drillscmder "github.com/papercomputeco/drills/cmd/drills"
)

func main() {
	cmd := drillscmder.NewDrillsCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
