package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-clog/clog"
	"github.com/urfave/cli"

	"github.com/gholms/euca2ools/shared/bundle"
	"github.com/gholms/euca2ools/shared/tools"
)

// CmdUnbundle cli command
var CmdUnbundle = cli.Command{
	Name:        "unbundle",
	Usage:       "Restore an image from its bundle",
	Description: "Checks, decompresses and reassembles bundle parts back into the image",
	Action:      runUnbundle,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "manifest, m", Usage: "manifest of the bundle to restore"},
		cli.StringFlag{Name: "source, s", Usage: "directory holding the parts (default: the manifest's)"},
		cli.StringFlag{Name: "destination, d", Value: ".", Usage: "directory for the restored image"},
		cli.StringFlag{Name: "log-file", Usage: "also log to this file"},
	},
}

func runUnbundle(ctx *cli.Context) error {
	err := setupLogging(ctx.String("log-file"))
	if err != nil {
		println("[euca] Error: This is going bad, could not setup logging", err.Error())
		os.Exit(-1)
	}
	defer clog.Shutdown()

	manifest := ctx.String("manifest")
	if manifest == "" && ctx.NArg() > 0 {
		manifest = ctx.Args().First()
	}
	if manifest == "" {
		return errors.New("a manifest to restore from is required")
	}

	res, err := bundle.Unbundle(&bundle.UnbundleRequest{
		ManifestPath: manifest,
		SourceDir:    ctx.String("source"),
		Destination:  ctx.String("destination"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s (%s, sha1 %s)\n", res.ImagePath, tools.FileSize(res.Size), res.Digest)
	return nil
}
