package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-formstate/internal/logger"
	"github.com/goliatone/go-formstate/pkg/prompt"
)

// Version information, injected at build time.
var Version = "dev"

func main() {
	log := logger.FromEnv(os.Stderr)
	defer func() { _ = log.Sync() }()

	root := newRootCmd(env{
		stdin:  os.Stdin,
		logger: log,
		driver: func() prompt.PromptDriver { return prompt.NewSurveyDriver(os.Stderr) },
	})
	root.Version = Version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "formstate:", err)
		os.Exit(1)
	}
}
