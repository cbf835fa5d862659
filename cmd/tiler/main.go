package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	InitFlag()
	InitSafeExit()
	if err := InitConf(configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := InitLog(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	SafeExitInst.Register(cancel)
	err := run(ctx)
	SafeExitInst.Cleanup()
	if err != nil {
		log.Fatal(err)
	}
}
