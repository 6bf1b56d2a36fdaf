package main

import (
	"os"

	"github.com/devadev/deva/cmd/deva/cli"

	// Agent registration via init().
	_ "github.com/devadev/deva/internal/agents/claude"
	_ "github.com/devadev/deva/internal/agents/codex"
	_ "github.com/devadev/deva/internal/agents/copilot"
	_ "github.com/devadev/deva/internal/agents/gemini"
)

func main() {
	cli.RegisterAgentCommands()
	os.Exit(cli.Main())
}
