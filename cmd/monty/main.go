package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/scinapse-labs/monty/cmd/monty/asm"
	"github.com/scinapse-labs/monty/interns"
	"github.com/scinapse-labs/monty/opcodes"
	"github.com/scinapse-labs/monty/repl"
	"github.com/scinapse-labs/monty/runner"
	"github.com/scinapse-labs/monty/tracker"
	"github.com/scinapse-labs/monty/values"
	"github.com/scinapse-labs/monty/version"
	"github.com/scinapse-labs/monty/vm"
)

func main() {
	app := &cli.Command{
		Name:  "monty",
		Usage: "An embeddable, sandboxed Python interpreter",
		Commands: []*cli.Command{
			runCommand,
			replCommand,
			dumpCommand,
			resumeCommand,
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"v"},
				Usage:   "Show version",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.Full())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "monty: %v\n", err)
		os.Exit(1)
	}
}

var limitsFlag = &cli.StringFlag{
	Name:  "limits",
	Usage: "path to a YAML resource-limit config (spec's Resource-limit configuration)",
}

func loadTracker(cmd *cli.Command) (tracker.Tracker, error) {
	path := cmd.String("limits")
	if path == "" {
		return tracker.NoLimit{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading limits file %s", path)
	}
	cfg, err := tracker.LoadConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing limits file %s", path)
	}
	return tracker.NewLimited(cfg), nil
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "assemble and run a .masm module to completion",
	ArgsUsage: "<file.masm>",
	Flags:     []cli.Flag{limitsFlag},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			return fmt.Errorf("run: expected a .masm file argument")
		}
		trk, err := loadTracker(cmd)
		if err != nil {
			return err
		}

		prog, err := assembleProgram(path)
		if err != nil {
			return err
		}

		print := &vm.PrintWriter{Direct: os.Stdout}
		state := runner.NewState(prog, trk, print)
		progress, err := state.Run()
		if err != nil {
			return err
		}
		return reportProgress(progress, state.Env())
	},
}

var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "run a .masm module to completion or first suspension, then write its snapshot",
	ArgsUsage: "<file.masm> <out.snapshot>",
	Flags:     []cli.Flag{limitsFlag},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args()
		if args.Len() < 2 {
			return fmt.Errorf("dump: expected <file.masm> <out.snapshot>")
		}
		trk, err := loadTracker(cmd)
		if err != nil {
			return err
		}

		prog, err := assembleProgram(args.Get(0))
		if err != nil {
			return err
		}

		print := &vm.PrintWriter{Direct: os.Stdout}
		state := runner.NewState(prog, trk, print)
		progress, err := state.Run()
		if err != nil {
			return err
		}
		if err := reportProgress(progress, state.Env()); err != nil && progress.Kind == runner.ProgressComplete {
			return err
		}

		blob, err := state.Dump()
		if err != nil {
			return errors.Wrap(err, "dump")
		}
		if err := os.WriteFile(args.Get(1), blob, 0o644); err != nil {
			return errors.Wrapf(err, "writing snapshot %s", args.Get(1))
		}
		fmt.Printf("wrote %d bytes to %s\n", len(blob), args.Get(1))
		return nil
	},
}

var resumeCommand = &cli.Command{
	Name:      "resume",
	Usage:     "reload a snapshot against its originating .masm module and keep draining it",
	ArgsUsage: "<file.masm> <snapshot>",
	Flags:     []cli.Flag{limitsFlag},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args()
		if args.Len() < 2 {
			return fmt.Errorf("resume: expected <file.masm> <snapshot>")
		}
		trk, err := loadTracker(cmd)
		if err != nil {
			return err
		}

		prog, err := assembleProgram(args.Get(0))
		if err != nil {
			return err
		}
		blob, err := os.ReadFile(args.Get(1))
		if err != nil {
			return errors.Wrapf(err, "reading snapshot %s", args.Get(1))
		}

		print := &vm.PrintWriter{Direct: os.Stdout}
		state, err := runner.LoadState(blob, prog, trk, print)
		if err != nil {
			return errors.Wrap(err, "resume")
		}
		progress, err := state.RunPending()
		if err != nil {
			return err
		}
		return reportProgress(progress, state.Env())
	},
}

// assembleProgram assembles a .masm file into a runner.Program, the one
// artifact every command needs. Real Python source is never parsed here —
// see cmd/monty/asm's package doc for why.
func assembleProgram(path string) (*runner.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	in := interns.New()
	unit, err := asm.Assemble(string(src), in)
	if err != nil {
		return nil, err
	}
	return runner.NewProgram(path, unit.Top, unit.Functions, nil, in, nil, nil), nil
}

// reportProgress renders a RunProgress the way a host-agnostic CLI would:
// the final result/exception on completion, or a description of the pending
// call(s) monty can't answer on its own without a real host wired in.
func reportProgress(p *runner.RunProgress, env values.Env) error {
	switch p.Kind {
	case runner.ProgressComplete:
		if p.Err != nil {
			fmt.Fprintf(os.Stderr, "unhandled exception: %s\n", p.Err.Kind)
			return fmt.Errorf("program raised %s", p.Err.Kind)
		}
		if p.Result.Type != values.TypeNone {
			fmt.Println(env.PyRepr(p.Result))
		}
		return nil
	case runner.ProgressFunctionCall:
		fmt.Printf("suspended on external call %q (call id %d) — no host wired to answer it\n", p.Call.Name, p.Call.CallID)
		return fmt.Errorf("program suspended")
	case runner.ProgressOsCall:
		fmt.Printf("suspended on OS call %q (%s, call id %d) — no host wired to answer it\n", p.OsCall.Name, p.OsCall.OsKind, p.OsCall.CallID)
		return fmt.Errorf("program suspended")
	case runner.ProgressResolveFutures:
		fmt.Printf("%d call(s) pending resolution — no host wired to answer them\n", len(p.Pending))
		return fmt.Errorf("program suspended")
	}
	return nil
}

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "start an interactive assembly session (monty's toy .masm dialect, not Python source)",
	Flags: []cli.Flag{
		limitsFlag,
		&cli.StringFlag{Name: "history", Usage: "readline history file", Value: ""},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		trk, err := loadTracker(cmd)
		if err != nil {
			return err
		}
		return runRepl(cmd.String("history"), trk)
	},
}

// runRepl drives a persistent repl.Session via chzyer/readline, using
// mattn/go-isatty to decide whether interactive affordances (a "..." block
// prompt) make sense at all — a non-terminal stdin (a pipe or redirected
// file) gets fed straight through without them.
func runRepl(historyFile string, trk tracker.Tracker) error {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.Wrap(err, "repl: starting readline")
	}
	defer rl.Close()

	print := &vm.PrintWriter{Direct: os.Stdout}
	rc := &replCompiler{}
	sess := repl.New(rc, trk, print)
	rc.sess = sess

	var buf string
	for {
		prompt := ">>> "
		if buf != "" {
			prompt = "... "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buf = ""
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if buf == "" && (line == "exit" || line == "quit") {
			return nil
		}

		buf += line + "\n"
		if interactive && repl.DetectContinuationMode(buf) != repl.Complete {
			continue
		}

		source := buf
		buf = ""
		runReplSnippet(sess, source)
	}
}

func runReplSnippet(sess *repl.Session, source string) {
	prog, err := sess.Start(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	if prog.Kind != runner.ProgressComplete {
		fmt.Printf("(suspended: kind=%d, %d pending call(s) — no host wired to answer them)\n", prog.Kind, len(prog.Pending))
		return
	}
	if prog.Err != nil {
		fmt.Printf("unhandled exception: %s\n", prog.Err.Kind)
		return
	}
	if prog.Result.Type != values.TypeNone {
		fmt.Println(sess.Env().PyRepr(prog.Result))
	}
}

// replCompiler adapts the asm toy assembler to repl.Compiler. It is
// constructed before the Session that owns it (repl.New needs a Compiler up
// front, but the assembler needs the Session's own Interns table to intern
// string literals against) — sess is wired in immediately after
// repl.New returns, before the first Compile call ever arrives.
type replCompiler struct {
	sess *repl.Session
}

func (c *replCompiler) Compile(source, scriptName string, funcIDBase, classIDBase uint32) (*repl.CompiledSnippet, error) {
	// classIDBase is accepted for interface conformance only: the toy
	// assembler has no class-body syntax (OP_BUILD_CLASS is never emitted
	// by it), so there is nothing to rebase against it.
	_ = classIDBase

	unit, err := asm.Assemble(source, c.sess.Interns())
	if err != nil {
		return nil, err
	}
	unit.Top.Name = scriptName
	rebaseFunctionRefs(unit.Top, funcIDBase)
	for _, fn := range unit.Functions {
		rebaseFunctionRefs(fn.Code, funcIDBase)
	}
	return &repl.CompiledSnippet{Code: unit.Top, Functions: unit.Functions}, nil
}

// rebaseFunctionRefs shifts every MAKE_FUNCTION/MAKE_CLOSURE operand emitted
// for this snippet by base, the first free index in the session's growing
// Functions table — the assembler itself numbers a snippet's own functions
// from zero, knowing nothing about functions earlier snippets already
// defined.
func rebaseFunctionRefs(code *vm.CodeObject, base uint32) {
	for i, inst := range code.Instructions {
		if inst.Op == opcodes.OP_MAKE_FUNCTION || inst.Op == opcodes.OP_MAKE_CLOSURE {
			code.Instructions[i].A += base
		}
	}
}
