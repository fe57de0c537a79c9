// ==============================================================================================
// FILE: repl/repl.go
// ==============================================================================================
// PACKAGE: repl
// PURPOSE: The Read-Eval-Print Loop interface. Connects a terminal to a host.Context: line
//          editing and history via liner, colored output via aurora, and an optional AST/bytecode
//          debug dump via treeprint, all driven through the same lexer->parser->compiler->vm
//          pipeline a script file runs through.
// ==============================================================================================

package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/peterh/liner"
	"github.com/xlab/treeprint"

	"wings/ast"
	"wings/code"
	"wings/host"
	"wings/lexer"
	"wings/object"
	"wings/parser"
	"wings/token"
)

const (
	prompt     = ">> "
	contPrompt = ".. "
	logo       = `
┏━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┓
┃  _       _                                         ┃
┃ | |     (_)                                        ┃
┃ |_ _ _ _|_|____ ___ ___                            ┃
┃ \ \ V  V | |  _  (_-/ _ \                           ┃
┃  \_/\_/\_|_|_| |_/__\___/                           ┃
┃                                                     ┃
┃ The wings scripting language, embedded edition      ┃
┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛
`
)

// Start launches the REPL against ctx until the user exits or the input
// stream closes. ctx's globals persist across lines, the same session
// state a script's top-level module scope would have.
func Start(ctx *host.Context, out io.Writer, colorize bool) {
	au := aurora.NewAurora(colorize)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	debugMode := false

	fmt.Fprint(out, logo)
	printHelp(out, au)

	for {
		input, err := readStatement(line, au)
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			return
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, ".") {
			switch strings.TrimSpace(input) {
			case ".exit":
				fmt.Fprintln(out, au.Yellow("Goodbye!"))
				return
			case ".clear":
				fmt.Fprintln(out, au.Red("There is no per-session state to clear independent of the context; start a new Context instead."))
			case ".debug":
				debugMode = !debugMode
				status := "disabled"
				if debugMode {
					status = "enabled"
				}
				fmt.Fprintf(out, "%s\n", au.Gray(12, "debug mode "+status))
			case ".help":
				printHelp(out, au)
			default:
				fmt.Fprintf(out, "%s\n", au.Red("unknown command: "+input+" (try .help)"))
			}
			continue
		}

		if debugMode {
			printTokens(out, input, au)
			printAST(out, input, au)
		}

		evalLine(ctx, out, au, input, debugMode)
	}
}

// readStatement reads one logical statement from the terminal, prompting
// for continuation lines while a block opened by a trailing ':' remains
// unterminated (closed by a blank line), so multi-line if/def/class/while
// bodies can be typed the way a file would contain them.
func readStatement(line *liner.State, au aurora.Aurora) (string, error) {
	first, err := line.Prompt(au.Cyan(prompt).String())
	if err != nil {
		return "", err
	}
	first = strings.TrimRight(first, " \t")
	if strings.TrimSpace(first) == "" {
		return "", nil
	}
	if !strings.HasSuffix(strings.TrimSpace(first), ":") {
		return first, nil
	}

	var body strings.Builder
	body.WriteString(first)
	for {
		cont, err := line.Prompt(au.Cyan(contPrompt).String())
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(cont) == "" {
			break
		}
		body.WriteString("\n    ")
		body.WriteString(strings.TrimLeft(cont, " \t"))
	}
	return body.String(), nil
}

// evalLine compiles input as a single expression first (so "1 + 2" prints
// 3); if that fails to parse, it falls back to treating input as one or
// more statements, whose side effects land in ctx's persistent globals.
func evalLine(ctx *host.Context, out io.Writer, au aurora.Aurora, input string, debugMode bool) {
	fn, err := ctx.Compile(input, host.ModeEval)
	mode := "expression"
	if err != nil {
		fn, err = ctx.Compile(input, host.ModeExec)
		mode = "statements"
	}
	if err != nil {
		fmt.Fprintf(out, "%s\n", au.Red(err.Error()))
		return
	}

	if debugMode {
		fmt.Fprintf(out, "%s\n", au.Gray(12, fmt.Sprintf("[compiled as %s]", mode)))
		printBytecode(out, fn.Code, au)
	}

	result, err := ctx.Invoke(fn, nil, nil)
	if err != nil {
		fmt.Fprintf(out, "%s\n", au.BrightRed(err.Error()))
		if tb := ctx.FormatTraceback(); tb != "" {
			fmt.Fprintln(out, au.Gray(12, tb))
		}
		return
	}
	printResult(out, au, result)
}

func printResult(out io.Writer, au aurora.Aurora, obj object.Object) {
	if obj == nil || obj == object.None {
		return
	}
	switch v := obj.(type) {
	case *object.Int, *object.Float:
		fmt.Fprintf(out, "%s\n", au.Yellow(v.Inspect()))
	case *object.Bool:
		color := au.Green(v.Inspect())
		if !v.Value {
			color = au.Red(v.Inspect())
		}
		fmt.Fprintf(out, "%s\n", color)
	case *object.String:
		fmt.Fprintf(out, "%s\n", au.Green(v.Inspect()))
	case *object.Function, *object.Builtin, *object.BoundMethod:
		fmt.Fprintf(out, "%s\n", au.Magenta(v.Inspect()))
	default:
		fmt.Fprintf(out, "%s\n", v.Inspect())
	}
}

func printHelp(out io.Writer, au aurora.Aurora) {
	fmt.Fprintln(out, au.Gray(12, "Commands:"))
	fmt.Fprintln(out, "  .exit   Quit the REPL")
	fmt.Fprintln(out, "  .clear  (no-op; each REPL process is one Context)")
	fmt.Fprintln(out, "  .debug  Toggle token/AST/bytecode dumps before evaluation")
	fmt.Fprintln(out, "  .help   Show this message")
	fmt.Fprintln(out)
}

func printTokens(out io.Writer, src string, au aurora.Aurora) {
	fmt.Fprintln(out, au.Gray(12, "-- tokens --"))
	l := lexer.New(src)
	for tok := l.NextToken(); tok.Type != token.EOF; tok = l.NextToken() {
		fmt.Fprintf(out, "  %-10s %q\n", tok.Type, tok.Literal)
	}
}

func printAST(out io.Writer, src string, au aurora.Aurora) {
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if p.Errors().HasErrors() {
		return
	}
	fmt.Fprintln(out, au.Gray(12, "-- ast --"))
	tree := treeprint.New()
	for _, stmt := range program.Statements {
		addStatementNode(tree, stmt)
	}
	fmt.Fprint(out, tree.String())
}

// addStatementNode renders stmt into tree, recursing into any nested block
// so compound statements (if/while/def/class/try) show their body as
// indented children instead of a single flattened String().
func addStatementNode(tree treeprint.Tree, stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.IfStatement:
		branch := tree.AddBranch("if")
		for _, clause := range s.Clauses {
			clauseBranch := branch.AddBranch(clause.Condition.String())
			addBlock(clauseBranch, clause.Body)
		}
		if s.Else != nil {
			addBlock(branch.AddBranch("else"), s.Else)
		}
	case *ast.WhileStatement:
		branch := tree.AddBranch("while " + s.Condition.String())
		addBlock(branch, s.Body)
		if s.Else != nil {
			addBlock(branch.AddBranch("else"), s.Else)
		}
	case *ast.FunctionDefStatement:
		branch := tree.AddBranch("def " + s.Name)
		addBlock(branch, s.Body)
	case *ast.ClassDefStatement:
		branch := tree.AddBranch("class " + s.Name)
		addBlock(branch, s.Body)
	case *ast.TryStatement:
		branch := tree.AddBranch("try")
		addBlock(branch.AddBranch("body"), s.Body)
		for _, exc := range s.Excepts {
			addBlock(branch.AddBranch("except"), exc.Body)
		}
		if s.Finally != nil {
			addBlock(branch.AddBranch("finally"), s.Finally)
		}
	case *ast.BlockStatement:
		addBlock(tree, s)
	default:
		tree.AddNode(stmt.String())
	}
}

func addBlock(tree treeprint.Tree, block *ast.BlockStatement) {
	if block == nil {
		return
	}
	for _, stmt := range block.Statements {
		addStatementNode(tree, stmt)
	}
}

func printBytecode(out io.Writer, fn *object.CompiledFunction, au aurora.Aurora) {
	fmt.Fprintln(out, au.Gray(12, "-- bytecode --"))
	fmt.Fprint(out, code.Disassemble(fn.Instructions))
}
