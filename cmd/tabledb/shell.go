package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"

	"github.com/andreyvit/tabledb/session"
)

var (
	errExit        = errors.New("exit")
	errUnknownCmd  = errors.New("invalid command")
	errMissingArgs = errors.New("missing operand")
	errTooManyArgs = errors.New("too many arguments")
)

type command struct {
	// args is the number of arguments; -1 takes the rest of the line raw.
	args int
	run  func(sh *shell, args []string) error
}

var commands = map[string]command{
	"create":   {2, (*shell).create},
	"drop":     {1, (*shell).drop},
	"use":      {1, (*shell).use},
	"put":      {-1, (*shell).put},
	"get":      {1, (*shell).get},
	"remove":   {1, (*shell).remove},
	"commit":   {0, (*shell).commit},
	"rollback": {0, (*shell).rollback},
	"size":     {0, (*shell).size},
	"show":     {1, (*shell).show},
	"dump":     {0, (*shell).dump},
	"exit":     {0, (*shell).exit},
}

type shell struct {
	st     *session.State
	out    io.Writer
	errOut io.Writer
}

func newShell(st *session.State, out, errOut io.Writer) *shell {
	return &shell{st: st, out: out, errOut: errOut}
}

func (sh *shell) interactive(in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(nil, 16*1024*1024)
	for {
		fmt.Fprint(sh.out, "$ ")
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return
		}
		if err := sh.exec(scanner.Text()); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			fmt.Fprintln(sh.errOut, err)
		}
	}
}

// execLine runs a batch line, reporting whether every command succeeded.
func (sh *shell) execLine(line string) bool {
	err := sh.exec(line)
	if err != nil && !errors.Is(err, errExit) {
		fmt.Fprintln(sh.errOut, err)
		return false
	}
	return true
}

// exec runs the ';'-separated commands of line, stopping at the first error.
func (sh *shell) exec(line string) error {
	for _, stmt := range splitStatements(line) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		name, rest, _ := strings.Cut(stmt, " ")
		rest = strings.TrimSpace(rest)
		if name == "show" && rest == "tables" {
			if err := sh.showTables(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			continue
		}

		cmd, ok := commands[name]
		if !ok {
			return fmt.Errorf("%s: %w", name, errUnknownCmd)
		}
		args, err := parseArgs(cmd.args, rest)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := cmd.run(sh, args); err != nil {
			if errors.Is(err, errExit) {
				return err
			}
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseArgs(n int, rest string) ([]string, error) {
	if n < 0 {
		key, value, _ := strings.Cut(rest, " ")
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, errMissingArgs
		}
		if value[0] == '"' || value[0] == '\'' {
			parts, err := shlex.Split(value)
			if err != nil {
				return nil, err
			}
			if len(parts) != 1 {
				return nil, errTooManyArgs
			}
			value = parts[0]
		}
		return []string{key, value}, nil
	}

	args, err := shlex.Split(rest)
	if err != nil {
		return nil, err
	}
	if len(args) < n {
		return nil, errMissingArgs
	}
	if len(args) > n && n != 2 {
		return nil, errTooManyArgs
	}
	return args, nil
}

// splitStatements splits line at semicolons that are neither quoted nor the
// end of an XML character or entity reference such as "&lt;". Only a quote
// that opens a word starts a quoted run, so "it's" stays literal.
func splitStatements(line string) []string {
	var stmts []string
	var quote, prev rune = 0, ' '
	start, amp := 0, -1
	for i, r := range line {
		wordStart := prev == ' ' || prev == '\t' || prev == ';'
		prev = r
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case (r == '"' || r == '\'') && wordStart:
			quote = r
		case r == '&':
			amp = i
		case r == ';':
			if amp >= 0 && isEntityName(line[amp+1:i]) {
				amp = -1
				continue
			}
			stmts = append(stmts, line[start:i])
			start = i + 1
		case r == ' ' || r == '\t' || r == '<' || r == '>':
			amp = -1
		}
	}
	return append(stmts, line[start:])
}

func isEntityName(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func (sh *shell) create(args []string) error {
	name := args[0]
	exists, err := sh.st.TableExists(name)
	if err != nil {
		return err
	}
	if exists {
		fmt.Fprintf(sh.out, "%s exists\n", name)
		return nil
	}

	sig := strings.Join(args[1:], " ")
	if !strings.HasPrefix(sig, "(") || !strings.HasSuffix(sig, ")") {
		return errors.New("column types must be given as (type1 type2 ...)")
	}
	tokens := strings.Fields(sig[1 : len(sig)-1])
	if _, err := sh.st.CreateTable(name, tokens); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "created")
	return nil
}

func (sh *shell) drop(args []string) error {
	err := sh.st.RemoveTable(args[0])
	if errors.Is(err, session.ErrNoSuchTable) {
		fmt.Fprintln(sh.out, err)
		return nil
	} else if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "dropped")
	return nil
}

func (sh *shell) use(args []string) error {
	var uce *session.UnsavedChangesError
	err := sh.st.Use(args[0])
	if errors.Is(err, session.ErrNoSuchTable) || errors.As(err, &uce) {
		fmt.Fprintln(sh.out, err)
		return nil
	} else if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "using %s\n", args[0])
	return nil
}

// noTable turns ErrNoTable into the "no table" answer.
func (sh *shell) noTable(err error) (bool, error) {
	if errors.Is(err, session.ErrNoTable) {
		fmt.Fprintln(sh.out, "no table")
		return true, nil
	}
	return false, err
}

func (sh *shell) put(args []string) error {
	old, found, err := sh.st.Put(args[0], args[1])
	if handled, err := sh.noTable(err); handled || err != nil {
		return err
	}
	if found {
		fmt.Fprintf(sh.out, "overwrite\n%s\n", old)
	} else {
		fmt.Fprintln(sh.out, "new")
	}
	return nil
}

func (sh *shell) get(args []string) error {
	val, found, err := sh.st.Get(args[0])
	if handled, err := sh.noTable(err); handled || err != nil {
		return err
	}
	if found {
		fmt.Fprintf(sh.out, "found\n%s\n", val)
	} else {
		fmt.Fprintln(sh.out, "not found")
	}
	return nil
}

func (sh *shell) remove(args []string) error {
	_, found, err := sh.st.Remove(args[0])
	if handled, err := sh.noTable(err); handled || err != nil {
		return err
	}
	if found {
		fmt.Fprintln(sh.out, "removed")
	} else {
		fmt.Fprintln(sh.out, "not found")
	}
	return nil
}

func (sh *shell) printCount(n int, err error) error {
	if handled, err := sh.noTable(err); handled || err != nil {
		return err
	}
	fmt.Fprintln(sh.out, n)
	return nil
}

func (sh *shell) commit([]string) error {
	return sh.printCount(sh.st.Commit())
}

func (sh *shell) rollback([]string) error {
	return sh.printCount(sh.st.Rollback())
}

func (sh *shell) size([]string) error {
	return sh.printCount(sh.st.Size())
}

func (sh *shell) show(args []string) error {
	return fmt.Errorf("%w: show %s", errUnknownCmd, args[0])
}

func (sh *shell) showTables() error {
	names, err := sh.st.Registry().TableNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(sh.out, name)
	}
	return nil
}

func (sh *shell) dump([]string) error {
	s, err := sh.st.Dump()
	if handled, err := sh.noTable(err); handled || err != nil {
		return err
	}
	fmt.Fprint(sh.out, s)
	return nil
}

func (sh *shell) exit([]string) error {
	fmt.Fprintln(sh.out, "exit")
	return errExit
}
