package main

import (
	"fmt"
	"os"

	"go.keyforge.dev/vault/cmd/vaultd/app"
)

func main() {
	if err := app.Command().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
