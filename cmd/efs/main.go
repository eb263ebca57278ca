// Command efs manipulates an easy filesystem image from the shell, one
// kernel-style operation per invocation.
package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-easyfs/common"
	"github.com/mit-pdos/go-easyfs/util"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}

	if err := newApp(config).Run(os.Args); err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}

func newApp(config *Config) *cli.App {
	return &cli.App{
		Name:  appName,
		Usage: "operate on an easy filesystem image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "image",
				Aliases:     []string{"i"},
				Usage:       "path of the filesystem image",
				Value:       config.Image,
				Destination: &config.Image,
			},
			&cli.Uint64Flag{
				Name:        "debug",
				Usage:       "highest debug level to log",
				Value:       config.Debug,
				Destination: &config.Debug,
			},
		},
		Before: func(ctx *cli.Context) error {
			util.SetDebug(config.Debug)
			return config.Validate()
		},
		Commands: commands(config),
	}
}

// exitCode is the errno of a failed operation. Errors from outside the
// filesystem report EIO.
func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return int(-common.Code(err))
}
