package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "crew"}

	root.AddCommand(serveCMD(), runCMD(), workerCMD(), migrateCMD())
	_ = root.Execute()
}
