package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"ember/compiler"
	"ember/lexer"
	"ember/token"
	"ember/value"
	"ember/vm"
)

type replCmd struct{}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive REPL session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive read-compile-run loop.
`
}

func (*replCmd) SetFlags(f *flag.FlagSet) {}

func (*replCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start REPL: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	globals := make(map[string]value.Value)
	var buffer strings.Builder

	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return subcommands.ExitSuccess
		}
		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		tokens := scanAll(source)
		if !isInputReady(tokens) {
			continue
		}

		c, err := compiler.Compile(source)
		if err != nil {
			fmt.Fprintln(os.Stdout, err)
			buffer.Reset()
			continue
		}

		machine := vm.New(c, vm.WithGlobals(globals))
		if _, err := machine.Run(); err != nil {
			buffer.Reset()
			continue
		}
		buffer.Reset()
	}
}

func scanAll(source string) []token.Token {
	lex := lexer.New(source)
	var tokens []token.Token
	for {
		tok := lex.ScanToken()
		tokens = append(tokens, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return tokens
}

// isInputReady reports whether the buffered input is a complete,
// parseable program: every brace is closed and the last significant
// token isn't an operator or keyword that still expects an operand or
// body, so the REPL knows to keep reading continuation lines instead of
// compiling a truncated statement.
func isInputReady(tokens []token.Token) bool {
	braceBalance := 0
	for _, tok := range tokens {
		switch tok.Kind {
		case token.LEFT_BRACE:
			braceBalance++
		case token.RIGHT_BRACE:
			braceBalance--
		}
	}
	if braceBalance > 0 {
		return false
	}

	last := lastNonEOF(tokens)
	if last == nil {
		return true
	}

	switch last.Kind {
	case token.EQUAL, token.PLUS, token.MINUS, token.STAR, token.SLASH,
		token.BANG, token.EQUAL_EQUAL, token.BANG_EQUAL,
		token.LESS, token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL,
		token.COMMA, token.LEFT_PAREN, token.LEFT_BRACE,
		token.IF, token.ELSE, token.WHILE, token.FOR,
		token.RETURN, token.VAR, token.AND, token.OR, token.PRINT:
		return false
	}
	return true
}

func lastNonEOF(tokens []token.Token) *token.Token {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].Kind != token.EOF {
			return &tokens[i]
		}
	}
	return nil
}
