package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/RNCC-Cubesat/kubos/internal/client"
)

// shell is the interactive command loop.
type shell struct {
	client  *client.Client
	timeout time.Duration
	rl      *readline.Instance
	out     io.Writer
}

func newShell(c *client.Client, timeout time.Duration) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mcu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{client: c, timeout: timeout, rl: rl, out: rl.Stdout()}, nil
}

// Run reads commands until exit or EOF.
func (s *shell) Run() error {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if quit := s.dispatch(strings.ToLower(parts[0]), parts[1:]); quit {
			return nil
		}
	}
}

// dispatch runs one command and reports whether the shell should exit.
func (s *shell) dispatch(cmd string, args []string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "exit", "quit", "q":
		return true
	case "ping":
		err = s.cmdPing(ctx)
	case "modules", "m":
		err = s.cmdModules(ctx)
	case "fields", "f":
		err = s.cmdFields(ctx, args)
	case "commands", "c":
		err = s.cmdCommands(ctx, args)
	case "telem", "t":
		err = s.cmdTelemetry(ctx, args)
	case "send", "s":
		err = s.cmdSend(ctx, args)
	case "read", "r":
		err = s.cmdRead(ctx, args)
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help')\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *shell) cmdPing(ctx context.Context) error {
	pong, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, pong)
	return nil
}

func (s *shell) cmdModules(ctx context.Context) error {
	modules, err := s.client.ModuleList(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-8s 0x%02X\n", name, modules[name])
	}
	return nil
}

func (s *shell) cmdFields(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fields <module>")
	}
	fields, err := s.client.FieldList(ctx, args[0])
	if err != nil {
		return err
	}
	for _, f := range fields {
		fmt.Fprintf(s.out, "  %s\n", f)
	}
	return nil
}

func (s *shell) cmdCommands(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: commands <module>")
	}
	commands, err := s.client.CommandList(ctx, args[0])
	if err != nil {
		return err
	}
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %s\n", c)
	}
	return nil
}

func (s *shell) cmdTelemetry(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: telem <module> [field...]")
	}
	values, err := s.client.Telemetry(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-32s %v\n", name, values[name])
	}
	return nil
}

func (s *shell) cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <module> <command...>")
	}
	result, err := s.client.SendCommand(ctx, args[0], strings.Join(args[1:], " "), nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "sent %q to %s\n", result.Command, result.Module)
	return nil
}

func (s *shell) cmdRead(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <module> <count>")
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid count %q", args[1])
	}
	data, err := s.client.Read(ctx, args[0], count)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, data)
	return nil
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  ping                       check the service is up
  modules                    list configured modules
  fields <module>            list telemetry fields
  commands <module>          list known commands
  telem <module> [field...]  read telemetry (all fields when none given)
  send <module> <command>    send a SCPI command
  read <module> <count>      read raw bytes
  help                       show this help
  exit                       leave the shell`)
}
