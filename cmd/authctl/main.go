package main

import (
	"os"
)

func main() {
	if err := NewRootCmd(connectCore).Execute(); err != nil {
		os.Exit(1)
	}
}
