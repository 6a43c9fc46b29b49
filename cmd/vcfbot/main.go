package main

import (
	"log"

	_ "time/tzdata"

	corecmd "github.com/m3rciful/vcfbot/core/cmd"
	"github.com/m3rciful/vcfbot/internal/app"
)

func main() {
	if err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		Bootstrap:         app.Bootstrap,
	}); err != nil {
		log.Fatal(err)
	}
}
