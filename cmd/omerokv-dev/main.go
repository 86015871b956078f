// Runs the in-memory store emulator so the omerokv commands can be tried without a
// real image platform.

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/janelia-flyem/omerokv/config"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/janelia-flyem/omerokv/server"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to TOML configuration file.
	configFile = flag.String("config", "", "")

	// Address for http communication
	httpAddress = flag.String("http", "", "")

	// Project and datasets to create at startup, e.g. "Demo_OMERO:2020,2021,2022".
	seed = flag.String("seed", "", "")
)

const helpMessage = `
omerokv-dev serves an in-memory emulation of the image platform API.

Usage: omerokv-dev [options]

      -config     =string   Path to TOML configuration file ([devserver] and [logging]).
      -http       =string   Address for HTTP communication (default %s).
      -seed       =string   Create a project and datasets, e.g. "Demo_OMERO:2020,2021,2022".
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Without configured users, user "root" is accepted with the password in %s.
`

var usage = func() {
	fmt.Printf(helpMessage, server.DefaultWebAddress, config.PasswordEnv)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if *showHelp || flag.NArg() != 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		omerokv.Verbose = true
		omerokv.SetLogMode(omerokv.DebugMode)
	}
	if err := serve(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func serve() error {
	c := config.Default()
	if *configFile != "" {
		var err error
		if c, err = config.LoadConfig(*configFile); err != nil {
			return err
		}
	}
	c.Logging.SetLogger()
	defer omerokv.Shutdown()

	devConfig := c.Devserver
	if *httpAddress != "" {
		devConfig.HTTPAddress = *httpAddress
	}
	if devConfig.SecretKey == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		devConfig.SecretKey = hex.EncodeToString(secret)
	}
	if len(devConfig.Users) == 0 {
		password := os.Getenv(config.PasswordEnv)
		if password == "" {
			return fmt.Errorf("no [devserver.users] configured and %s is not set", config.PasswordEnv)
		}
		devConfig.Users = map[string]string{"root": password}
	}

	s := server.New(devConfig, nil)
	if *seed != "" {
		if err := server.Seed(context.Background(), s.Store(), *seed); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}
