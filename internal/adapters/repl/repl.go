package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"inventory-ledger/internal/adapters/cli"
	"inventory-ledger/internal/app"
	"inventory-ledger/internal/core"
)

var errExit = errors.New("exit")

const prompt = "> "

type shell struct {
	svc    app.ApplicationService
	sess   core.Session
	reader *bufio.Reader
	out    io.Writer
}

// Run starts the interactive shell. Commands are the same as the one-shot CLI,
// optionally prefixed with '/'. It returns when in is exhausted or on /exit.
func Run(ctx context.Context, svc app.ApplicationService, sess core.Session, in io.Reader, out io.Writer) error {
	s := &shell{svc: svc, sess: sess, reader: bufio.NewReader(in), out: out}

	fmt.Fprintf(out, "Inventory ledger  company %d", sess.CompanyID)
	if sess.WarehouseID != nil {
		fmt.Fprintf(out, "  warehouse %d", *sess.WarehouseID)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Type /help for commands, /exit to quit.")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, prompt)
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := s.dispatch(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(out, "Goodbye.")
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func (s *shell) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "exit", "quit":
		return errExit
	case "help":
		printHelp(s.out)
		return nil
	case "new-doc":
		if len(args) != 1 {
			return fmt.Errorf("usage: /new-doc <doc-type>")
		}
		return s.newDocument(ctx, args[0])
	case "show":
		if len(args) != 1 {
			return fmt.Errorf("usage: /show <document-id>")
		}
		return s.showDocument(ctx, args[0])
	case "create":
		return fmt.Errorf("create reads JSON from stdin; use /new-doc in the shell")
	}

	root := cli.NewRootCommand(s.svc, s.sess)
	root.SetOut(s.out)
	root.SetErr(s.out)
	root.SetArgs(append([]string{cmd}, args...))
	return root.ExecuteContext(ctx)
}

func (s *shell) showDocument(ctx context.Context, arg string) error {
	id, err := parsePositive(arg)
	if err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	res, err := s.svc.GetDocument(ctx, s.sess, id)
	if err != nil {
		return err
	}
	printDocument(s.out, res.Document)
	return nil
}
