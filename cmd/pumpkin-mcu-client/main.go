// Package main implements a command-line client for the pumpkin-mcu service.
// With --query it runs one GraphQL request and prints the response; otherwise
// it starts an interactive shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/RNCC-Cubesat/kubos/internal/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var url, query, token string
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("pumpkin-mcu-client", pflag.ContinueOnError)
	flagSet.StringVarP(&url, "url", "u", client.DefaultURL, "GraphQL endpoint")
	flagSet.StringVarP(&query, "query", "q", "", "run one GraphQL query and exit")
	flagSet.StringVar(&token, "token", os.Getenv("PUMPKIN_MCU_TOKEN"), "bearer token (default $PUMPKIN_MCU_TOKEN)")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	c := client.New(url, client.WithToken(token))

	if query != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return runQuery(ctx, c, query)
	}

	shell, err := newShell(c, timeout)
	if err != nil {
		return err
	}
	return shell.Run()
}

func runQuery(ctx context.Context, c *client.Client, query string) error {
	resp, err := c.Execute(ctx, query, nil)
	if resp != nil {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
	}
	return err
}
