package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/gholms/euca2ools/shared/procutil"
)

var (
	// Euca2oolsVersion should match suiteVersion in shared/bundle/bundle.go
	Euca2oolsVersion = "3.1.0"

	// These two are only filled by LDFLAGS at build time

	// EucaBuildTime is the time of the build
	EucaBuildTime string
	// EucaBuildGitHash is the git sha1 of the commit built from
	EucaBuildGitHash string
)

func main() {
	// Pipeline workers re-execute this binary under their own names and
	// must never fall through into the CLI.
	if procutil.WorkerInit() {
		return
	}

	app := cli.NewApp()
	app.Name = "euca2ools"
	app.Usage = "Eucalyptus image bundling tools"
	app.Version = Euca2oolsVersion
	app.Commands = []cli.Command{
		CmdBundleImage,
		CmdUnbundle,
		CmdUploadBundle,
		CmdVersion,
	}
	app.Flags = append(app.Flags, []cli.Flag{}...)

	// cli only turns ExitCoder errors into a nonzero status by itself
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "euca2ools:", err)
		os.Exit(1)
	}
}
