package main

import (
	"log"
	"os"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg"
)

var (
	version = "0.0.1"
)

func main() {
	app := pkg.NewApp(version)
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}
