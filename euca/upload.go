package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-clog/clog"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gholms/euca2ools/shared/eucarc"
	"github.com/gholms/euca2ools/shared/tools"
	"github.com/gholms/euca2ools/shared/walrus"
)

// CmdUploadBundle cli command
var CmdUploadBundle = cli.Command{
	Name:        "upload-bundle",
	Usage:       "Upload a bundle to the object store",
	Description: "Uploads a bundle's parts and then its manifest to a bucket",
	Action:      runUploadBundle,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "bucket, b", Usage: "bucket to upload into, as BUCKET[/PREFIX]"},
		cli.StringFlag{Name: "manifest, m", Usage: "manifest of the bundle to upload"},
		cli.StringFlag{Name: "acl", Value: "aws-exec-read", Usage: "canned ACL for the uploaded objects"},
		cli.StringFlag{Name: "url", Usage: "object store endpoint, overrides the eucarc"},
		cli.StringFlag{Name: "config", Usage: "eucarc file to read"},
		cli.StringFlag{Name: "log-file", Usage: "also log to this file"},
	},
}

func runUploadBundle(ctx *cli.Context) error {
	err := setupLogging(ctx.String("log-file"))
	if err != nil {
		println("[euca] Error: This is going bad, could not setup logging", err.Error())
		os.Exit(-1)
	}
	defer clog.Shutdown()

	location := ctx.String("bucket")
	if location == "" {
		return errors.New("a bucket to upload into is required")
	}
	manifest := ctx.String("manifest")
	if manifest == "" && ctx.NArg() > 0 {
		manifest = ctx.Args().First()
	}
	if manifest == "" {
		return errors.New("a manifest to upload is required")
	}

	rc, from, err := eucarc.Resolve(ctx.String("config"))
	if err != nil {
		return err
	}
	if from != "" {
		clog.Trace("read configuration from %s", from)
	}
	if ctx.IsSet("url") {
		rc.S3URL = ctx.String("url")
	}

	client, err := walrus.New(rc)
	if err != nil {
		return err
	}

	objects, err := client.UploadBundle(location, manifest, ctx.String("acl"))
	if err != nil {
		return err
	}

	bucket, _ := walrus.SplitLocation(location)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"object", "size"})
	for _, o := range objects {
		table.Append([]string{bucket + "/" + o.Key, tools.FileSize(o.Size)})
	}
	table.Render()
	fmt.Printf("Uploaded %d objects to %s\n", len(objects), bucket)
	return nil
}
