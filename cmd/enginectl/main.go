package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"arenaengine/config"
	"arenaengine/executor"
	"arenaengine/lang"
	"arenaengine/model"
	"arenaengine/runner"

	"github.com/fatih/color"
	logrus "github.com/sirupsen/logrus"
)

var (
	pass = color.New(color.FgGreen, color.Bold).SprintFunc()
	fail = color.New(color.FgRed, color.Bold).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

const usage = `Usage: enginectl <command> [flags]

Commands:
  run <file> [-lang L] [-stdin FILE]   compile and run a source file
  test <file> -cases FILE [-lang L]    run a file against JSON test cases
  check                                run a smoke program per language
  prune [-older DURATION]              remove leftover workspaces`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, cfg, os.Args[2:])
	case "test":
		err = testCmd(ctx, cfg, os.Args[2:])
	case "check":
		err = checkCmd(ctx, cfg)
	case "prune":
		err = pruneCmd(cfg, os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, fail("error:"), err)
		os.Exit(1)
	}
}

func newEngine(cfg config.Config) *executor.Engine {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return executor.NewEngine(executor.Options{
		Registry: lang.NewRegistry(lang.Toolchain{
			Gpp:      cfg.GppPath,
			CppFlags: cfg.CppFlags,
			Python:   cfg.PythonPath,
			Node:     cfg.NodePath,
		}),
		WorkspaceRoot:  cfg.WorkspaceRoot,
		RunTimeout:     cfg.RunTimeout,
		CompileTimeout: cfg.CompileTimeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
		Logger:         log,
	})
}

// languageFor maps a file extension to a language identifier.
func languageFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cpp", ".cc", ".cxx":
		return string(lang.CPP)
	case ".py":
		return string(lang.Python)
	case ".js", ".mjs":
		return string(lang.JavaScript)
	}
	return ""
}

// parseSource parses flags that may come before or after the file argument.
func parseSource(fs *flag.FlagSet, args []string, language *string) (string, error) {
	var file string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		file, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if file == "" {
		file = fs.Arg(0)
	}
	if file == "" {
		return "", fmt.Errorf("missing source file")
	}
	if *language == "" {
		*language = languageFor(file)
	}
	return file, nil
}

func runCmd(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	language := fs.String("lang", "", "language (cpp, python, javascript)")
	stdinFile := fs.String("stdin", "", "file to feed as standard input")
	file, err := parseSource(fs, args, language)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var stdin []byte
	if *stdinFile != "" {
		if stdin, err = os.ReadFile(*stdinFile); err != nil {
			return err
		}
	}

	res, err := newEngine(cfg).Execute(ctx, executor.ExecutionRequest{
		SourceCode: string(code),
		Language:   *language,
		Stdin:      string(stdin),
	})
	if err != nil {
		return err
	}

	fmt.Print(res.Stdout)
	status := pass(res.Verdict)
	if !res.Succeeded {
		status = fail(res.Verdict)
		fmt.Fprintln(os.Stderr, res.Diagnostic)
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", status, dim(res.Duration.Round(time.Millisecond)))
	if !res.Succeeded {
		os.Exit(2)
	}
	return nil
}

func testCmd(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	language := fs.String("lang", "", "language (cpp, python, javascript)")
	casesFile := fs.String("cases", "", "JSON array of {id, input, expectedOutput}")
	file, err := parseSource(fs, args, language)
	if err != nil {
		return err
	}
	if *casesFile == "" {
		return fmt.Errorf("-cases is required")
	}

	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(*casesFile)
	if err != nil {
		return err
	}
	var cases []model.TestCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		return fmt.Errorf("parse %s: %w", *casesFile, err)
	}

	run := runner.NewRun(newEngine(cfg), string(code), *language, cases,
		runner.WithObserver(func(o model.TestCaseOutcome) {
			if o.Passed {
				fmt.Printf("case %d %s\n", o.OrdinalID, pass("PASS"))
				return
			}
			fmt.Printf("case %d %s\n%s\n", o.OrdinalID, fail("FAIL"), dim(strings.TrimRight(o.ActualOutput, "\n")))
		}))
	outcomes, runErr := run.Execute(ctx)

	passed := 0
	for _, o := range outcomes {
		if o.Passed {
			passed++
		}
	}
	total := len(runner.Eligible(cases))
	summary := fmt.Sprintf("%d/%d passed", passed, total)
	if passed == total && runErr == nil {
		fmt.Println(pass(summary))
		return nil
	}
	fmt.Println(fail(summary))
	if runErr != nil {
		return runErr
	}
	os.Exit(2)
	return nil
}

var smokePrograms = map[lang.Language]string{
	lang.CPP:        "#include <cstdio>\nint main(){int a,b;scanf(\"%d %d\",&a,&b);printf(\"%d\\n\",a+b);}\n",
	lang.Python:     "a, b = map(int, input().split())\nprint(a + b)\n",
	lang.JavaScript: "const [a, b] = require('fs').readFileSync(0, 'utf8').trim().split(/\\s+/).map(Number);\nconsole.log(a + b);\n",
}

func checkCmd(ctx context.Context, cfg config.Config) error {
	engine := newEngine(cfg)
	failed := 0
	for _, l := range []lang.Language{lang.CPP, lang.Python, lang.JavaScript} {
		res, err := engine.Execute(ctx, executor.ExecutionRequest{
			SourceCode: smokePrograms[l],
			Language:   string(l),
			Stdin:      "3 4\n",
		})
		switch {
		case err != nil:
			failed++
			fmt.Printf("%-11s %s %v\n", l, fail("ERROR"), err)
		case !res.Succeeded || runner.Normalize(res.Stdout) != "7":
			failed++
			fmt.Printf("%-11s %s %s\n", l, fail(res.Verdict), dim(firstLine(res.Diagnostic)))
		default:
			fmt.Printf("%-11s %s %s\n", l, pass("ok"), dim(res.Duration.Round(time.Millisecond)))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d language(s) failed", failed)
	}
	return nil
}

func pruneCmd(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	older := fs.Duration("older", 10*time.Minute, "remove workspaces not modified for this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := executor.PruneWorkspaces(cfg.WorkspaceRoot, *older)
	fmt.Printf("removed %d workspace(s) from %s\n", n, cfg.WorkspaceRoot)
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
