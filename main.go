package main

import (
	"github.com/healthfees-org/cloudflare-backstage.io/cmd"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Execute()
}
