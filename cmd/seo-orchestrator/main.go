package main

import (
	"github.com/JakeFAU/seo-orchestrator/cmd"
)

func main() {
	cmd.Execute()
}
