package main

import (
	"os"

	"github.com/arnaudstdr/bot-trade/cmd/bot-trade/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
