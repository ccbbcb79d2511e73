package main

import (
	_ "time/tzdata"

	"github.com/tansive/chatbridge/internal/cli"
	"github.com/tansive/chatbridge/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger("info")
}

func main() {
	cli.Execute()
}
