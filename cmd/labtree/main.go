package main

import (
	"fmt"
	"os"

	"labtree/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "labtree:", err)
		os.Exit(1)
	}
}
