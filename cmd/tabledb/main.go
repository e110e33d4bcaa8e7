// Command tabledb is a line-oriented shell over a table store directory.
//
//	tabledb --dir DIR                          interactive prompt
//	tabledb --dir DIR 'create t (int String); use t; put k <row>...</row>; commit'
//
// Commands are separated by ';'. In batch mode the first failing command
// stops execution with exit code 1.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/andreyvit/tabledb"
	"github.com/andreyvit/tabledb/session"
)

type cli struct {
	Dir       string   `short:"d" env:"TABLEDB_DIR" required:"" type:"path" help:"Root directory of the tables."`
	Storage   string   `enum:"file,bolt" default:"file" help:"Storage for new tables (file or bolt)."`
	ChangeLog bool     `name:"changelog" help:"Record every commit in per-table change logs."`
	NoLock    bool     `help:"Do not lock the root directory."`
	Verbose   bool     `short:"v" help:"Log debug information on stderr."`
	Commands  []string `arg:"" optional:"" help:"Commands to run instead of starting the prompt."`
}

type config struct {
	Exit   func(int)
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func main() {
	rc := run(os.Args[1:], &config{
		Exit:   os.Exit,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	os.Exit(rc)
}

func run(args []string, cfg *config) int {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("tabledb"),
		kong.Description("Shell for an embedded store of schema-typed tables."),
		kong.Exit(cfg.Exit),
		kong.Writers(cfg.Stdout, cfg.Stderr),
	)
	if err != nil {
		panic(err)
	}
	if _, err := parser.Parse(args); err != nil {
		parser.Errorf("%v", err)
		return 2
	}

	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cfg.Stderr, &slog.HandlerOptions{Level: level}))

	kind, _ := tabledb.ParseStorageKind(c.Storage)
	reg, err := tabledb.OpenRegistry(c.Dir, tabledb.Options{
		Logger:    logger,
		Verbose:   c.Verbose,
		Storage:   kind,
		ChangeLog: c.ChangeLog,
		LockDir:   !c.NoLock,
	})
	if err != nil {
		parser.Errorf("%v", err)
		return 1
	}
	defer reg.Close()

	sh := newShell(session.New(reg), cfg.Stdout, cfg.Stderr)
	if len(c.Commands) > 0 {
		if !sh.execLine(strings.Join(c.Commands, " ")) {
			return 1
		}
		return 0
	}
	sh.interactive(cfg.Stdin)
	return 0
}
