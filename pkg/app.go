package pkg

import (
	"github.com/urfave/cli"
)

func NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "winshield"
	app.Version = version
	app.Usage = "Windows patch correlation and remediation"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "config file path",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:   "scan",
			Usage:  "correlate installed updates against advisory data",
			Action: scan,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "product",
					Usage: "override the resolved advisory product name",
				},
				cli.StringFlag{
					Name:  "overrides",
					Usage: "product override rules file (YAML)",
				},
			},
		},
		{
			Name:      "download",
			Usage:     "download a missing update from the Update Catalog",
			ArgsUsage: "[KB id]",
			Action:    download,
		},
		{
			Name:      "install",
			Usage:     "install a downloaded update package",
			ArgsUsage: "[package file]",
			Action:    install,
		},
		{
			Name:   "show",
			Usage:  "re-display the last persisted scan result",
			Action: show,
		},
	}

	return app
}
