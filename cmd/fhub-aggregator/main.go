package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/forgehub-io/forgehub/cmd/fhub-aggregator/app"
)

func main() {
	app.Run()
}
