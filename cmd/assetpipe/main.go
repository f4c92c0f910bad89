package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build   commands.BuildCmd   `cmd:"" default:"withargs" help:"Build the assets once"`
		Watch   commands.WatchCmd   `cmd:"" help:"Build, then rebuild whenever sources change"`
		Resolve commands.ResolveCmd `cmd:"" help:"Show which rule handles the given paths"`
		Config  commands.ConfigCmd  `cmd:"" help:"Print the resolved build configuration"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	// a missing .env is fine, real environment variables always win
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Configuration driven front-end asset pipeline."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
