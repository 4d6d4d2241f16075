package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs" // GOMAXPROCSをコンテナのCPUクォータに合わせる

	"github.com/hitoshi/outperformer/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
