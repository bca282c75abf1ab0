package main

import (
	"encoding/json"
	"sync"

	"github.com/narrate-go/narrate/internal/core"
	"github.com/spf13/cobra"
)

type commandContext struct {
	logFile string

	appOnce sync.Once
	app     *core.App
	appErr  error

	// newApp is replaced in tests.
	newApp func() (*core.App, error)
}

func newCommandContext() *commandContext {
	return &commandContext{newApp: core.New}
}

func (c *commandContext) ensureApp() (*core.App, error) {
	c.appOnce.Do(func() {
		c.app, c.appErr = c.newApp()
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
