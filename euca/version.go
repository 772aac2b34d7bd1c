package main

import (
	"fmt"

	"github.com/urfave/cli"
)

// CmdVersion CLI object
var CmdVersion = cli.Command{
	Name:        "version",
	Usage:       "Shows euca2ools version",
	Description: "Shows euca2ools version",
	Action:      getVersion,
	Flags:       []cli.Flag{},
}

func getVersion(ctx *cli.Context) error {
	fmt.Printf("euca2ools version: %s\nBuilt on: %s\nCommit sha: %s\n",
		Euca2oolsVersion, EucaBuildTime, EucaBuildGitHash)
	return nil
}
