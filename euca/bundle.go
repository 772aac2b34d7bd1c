package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-clog/clog"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gholms/euca2ools/shared/bundle"
	"github.com/gholms/euca2ools/shared/eucarc"
	"github.com/gholms/euca2ools/shared/procutil"
	"github.com/gholms/euca2ools/shared/tools"
)

// CmdBundleImage cli command
var CmdBundleImage = cli.Command{
	Name:        "bundle-image",
	Usage:       "Bundle an image for the cloud",
	Description: "Compresses and splits a disk image into digested parts plus a manifest",
	Action:      runBundleImage,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "image, i", Usage: "disk image to bundle"},
		cli.StringFlag{Name: "prefix, p", Usage: "part file name prefix (default: the image file name)"},
		cli.StringFlag{Name: "destination, d", Value: ".", Usage: "directory for the parts and manifest"},
		cli.Int64Flag{Name: "part-size", Value: bundle.DefaultPartSize, Usage: "maximum part size in bytes"},
		cli.IntFlag{Name: "compression-level", Usage: "gzip level 1-9 (default: gzip's own default)"},
		cli.StringFlag{Name: "cert", Usage: "user certificate, overrides the eucarc"},
		cli.StringFlag{Name: "config", Usage: "eucarc file to read"},
		cli.StringFlag{Name: "log-file", Usage: "also log to this file"},
	},
}

func runBundleImage(ctx *cli.Context) error {
	err := setupLogging(ctx.String("log-file"))
	if err != nil {
		println("[euca] Error: This is going bad, could not setup logging", err.Error())
		os.Exit(-1)
	}
	defer clog.Shutdown()

	image := ctx.String("image")
	if image == "" && ctx.NArg() > 0 {
		image = ctx.Args().First()
	}
	if image == "" {
		return errors.New("an image to bundle is required")
	}

	rc, from, err := eucarc.Resolve(ctx.String("config"))
	if err != nil {
		return err
	}
	if from != "" {
		clog.Trace("read configuration from %s", from)
	}

	fingerprint := ""
	cert := ctx.String("cert")
	if cert == "" {
		cert = rc.CertPath
	}
	if cert != "" {
		if fingerprint, err = procutil.CertFingerprint(cert); err != nil {
			return err
		}
	}

	res, err := bundle.CreateBundle(&bundle.Request{
		ImagePath:   image,
		Destination: ctx.String("destination"),
		Prefix:      ctx.String("prefix"),
		PartSize:    ctx.Int64("part-size"),
		Level:       ctx.Int("compression-level"),
		Fingerprint: fingerprint,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Bundled %s: %s in %d parts (%s bundled)\n",
		image, tools.FileSize(res.Size), len(res.Parts), tools.FileSize(res.BundledSize))
	printParts(res.Parts)
	fmt.Printf("Wrote manifest %s\n", res.ManifestPath)

	return nil
}

func printParts(parts []bundle.PartInfo) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"part", "size", "sha1"})

	for _, p := range parts {
		table.Append([]string{p.Filename, tools.FileSize(p.Size), p.Digest})
	}
	table.Render()
}
