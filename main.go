package main

import (
	"log"

	"github.com/cjangrist/mcp-omnisearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
