// Command fbuildd is the coordination daemon. It is normally launched on
// demand by the fbuild CLI rather than run by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"fbuild/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	if err := daemonrun.Run(context.Background(), daemonrun.Options{ConfigPath: *configPath}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
