// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lycaonctl talks to a lycaon console.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/shayne/yargs"
	"github.com/yeetrun/lycaon/pkg/caprpc"
	"github.com/yeetrun/lycaon/pkg/layers"
	"github.com/yeetrun/lycaon/pkg/logutil"
	"github.com/yeetrun/lycaon/pkg/lycaon"
)

const defaultAddr = "localhost:29999"

type globalFlagsParsed struct {
	Addr    string `flag:"addr" help:"Console address host:port (LYCAON_ADDR)"`
	WS      string `flag:"ws" help:"Dial a websocket URL such as ws://host:8080/rpc instead of TCP"`
	Format  string `flag:"format" help:"Output format: text, json or yaml"`
	Verbose bool   `flag:"verbose" short:"v" help:"Log protocol activity to stderr"`
}

var globals globalFlagsParsed

func parseGlobalFlags(args []string) (globalFlagsParsed, []string, error) {
	result, err := yargs.ParseKnownFlags[globalFlagsParsed](args, yargs.KnownFlagsOptions{})
	if err != nil {
		return globalFlagsParsed{}, nil, err
	}
	flags := result.Flags
	if flags.Addr == "" {
		flags.Addr = os.Getenv("LYCAON_ADDR")
	}
	if flags.Addr == "" {
		flags.Addr = defaultAddr
	}
	if flags.Format == "" {
		flags.Format = formatText
	}
	return flags, result.RemainingArgs, nil
}

func main() {
	flags, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	globals = flags
	if !validFormat(globals.Format) {
		fmt.Fprintf(os.Stderr, "unknown format %q\n", globals.Format)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	handlers := map[string]yargs.SubcommandHandler{
		"echo":         handleEcho,
		"layer-exists": handleLayerExists,
		"version":      handleVersion,
	}
	if err := yargs.RunSubcommands(ctx, args, buildHelpConfig(), globalFlagsParsed{}, handlers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildHelpConfig() yargs.HelpConfig {
	return yargs.HelpConfig{
		Command: yargs.CommandInfo{
			Name:        "lycaonctl",
			Description: "Query a lycaon console over its capability protocol.",
			Examples: []string{
				"lycaonctl echo 42",
				"lycaonctl layer-exists deadbeef --repo library/alpine",
				"lycaonctl --ws ws://localhost:8080/rpc echo 7",
			},
		},
		SubCommands: map[string]yargs.SubCommandInfo{
			"echo": {
				Name:        "echo",
				Description: "Fetch a greeting carrying NUM from the message interface",
				Usage:       "NUM",
			},
			"layer-exists": {
				Name:        "layer-exists",
				Description: "Ask whether the console holds a layer blob",
				Usage:       "DIGEST [--repo REPO] [--name NAME] [--algorithm sha256]",
			},
			"version": {
				Name:        "version",
				Description: "Print the protocol version",
			},
		},
	}
}

// dial connects using the global flags.
func dial(ctx context.Context) (*caprpc.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	level := "warn"
	if globals.Verbose {
		level = "debug"
	}
	opts := caprpc.Options{Logger: logutil.Must(level, true)}
	if globals.WS != "" {
		return caprpc.DialWebSocket(ctx, globals.WS, opts)
	}
	return caprpc.Dial(ctx, globals.Addr, opts)
}

// stripCommand drops the subcommand name if the router passed it along.
func stripCommand(args []string, name string) []string {
	if len(args) > 0 && args[0] == name {
		return args[1:]
	}
	return args
}

type noFlags struct{}

func handleEcho(ctx context.Context, args []string) error {
	result, err := yargs.ParseFlags[noFlags](stripCommand(args, "echo"))
	if err != nil {
		return err
	}
	if len(result.Args) != 1 {
		return errors.New("echo takes exactly one NUM argument")
	}
	num, err := strconv.ParseInt(result.Args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid NUM %q: %w", result.Args[0], err)
	}

	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	m, err := lycaon.NewClient(conn).MessageInterface(ctx)
	if err != nil {
		return err
	}
	defer m.Release()
	msg, err := m.Get(ctx, num)
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout, globals.Format).message(msg)
}

type layerExistsFlagsParsed struct {
	Repo      string `flag:"repo" help:"Repository the layer belongs to"`
	Name      string `flag:"name" help:"Layer name"`
	Algorithm string `flag:"algorithm" help:"Digest algorithm (sha256)"`
}

func handleLayerExists(ctx context.Context, args []string) error {
	result, err := yargs.ParseFlags[layerExistsFlagsParsed](stripCommand(args, "layer-exists"))
	if err != nil {
		return err
	}
	if len(result.Args) != 1 {
		return errors.New("layer-exists takes exactly one DIGEST argument")
	}
	alg := layers.SHA256
	if s := result.Flags.Algorithm; s != "" {
		if alg, err = layers.ParseAlgorithm(s); err != nil {
			return err
		}
	}
	ref := layers.LayerRef{
		Algorithm: alg,
		Digest:    result.Args[0],
		Name:      result.Flags.Name,
		Repo:      result.Flags.Repo,
	}

	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	l, err := lycaon.NewClient(conn).LayerInterface(ctx)
	if err != nil {
		return err
	}
	defer l.Release()
	res, err := l.LayerExists(ctx, lycaon.Layer{
		Algorithm: ref.Algorithm,
		Digest:    lycaon.DigestPtr(ref.Digest),
		Name:      ref.Name,
		Repo:      ref.Repo,
	})
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout, globals.Format).layer(ref, res)
}

func handleVersion(_ context.Context, _ []string) error {
	return newPrinter(os.Stdout, globals.Format).version(caprpc.ProtocolVersion)
}
