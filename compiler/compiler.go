// Package compiler implements a single-pass Pratt parser that compiles
// source text directly to a chunk.Chunk: there is no separate AST stage,
// every grammar rule emits bytecode as it is recognized.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"ember/chunk"
	"ember/lexer"
	"ember/token"
)

// Precedence orders the grammar's infix operators from loosest to
// tightest binding. parsePrecedence consumes every rule whose own
// precedence is at least as tight as the level requested.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment        // =
	PrecOr                // or
	PrecAnd               // and
	PrecEquality          // == !=
	PrecComparison        // < > <= >=
	PrecTerm              // + -
	PrecFactor            // * /
	PrecUnary             // ! -
	PrecCall              // . ()
	PrecPrimary
)

type prefixFn func(p *Parser, canAssign bool)
type infixFn func(p *Parser, canAssign bool)

// parseRule is one row of the parse table: the prefix handler to use
// when the token starts an expression, the infix handler to use when
// it appears mid-expression, and the precedence that binds the infix
// handler's right-hand operand.
type parseRule struct {
	prefix     prefixFn
	infix      infixFn
	precedence Precedence
}

var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LEFT_PAREN:    {prefix: (*Parser).grouping},
		token.MINUS:         {prefix: (*Parser).unary, infix: (*Parser).binary, precedence: PrecTerm},
		token.PLUS:          {infix: (*Parser).binary, precedence: PrecTerm},
		token.SLASH:         {infix: (*Parser).binary, precedence: PrecFactor},
		token.STAR:          {infix: (*Parser).binary, precedence: PrecFactor},
		token.BANG:          {prefix: (*Parser).unary},
		token.BANG_EQUAL:    {infix: (*Parser).binary, precedence: PrecEquality},
		token.EQUAL_EQUAL:   {infix: (*Parser).binary, precedence: PrecEquality},
		token.GREATER:       {infix: (*Parser).binary, precedence: PrecComparison},
		token.GREATER_EQUAL: {infix: (*Parser).binary, precedence: PrecComparison},
		token.LESS:          {infix: (*Parser).binary, precedence: PrecComparison},
		token.LESS_EQUAL:    {infix: (*Parser).binary, precedence: PrecComparison},
		token.IDENTIFIER:    {prefix: (*Parser).variable},
		token.STRING:        {prefix: (*Parser).string},
		token.NUMBER:        {prefix: (*Parser).number},
		token.NIL:           {prefix: (*Parser).literal},
		token.TRUE:          {prefix: (*Parser).literal},
		token.FALSE:         {prefix: (*Parser).literal},
	}
}

func ruleFor(kind token.Kind) parseRule {
	return rules[kind]
}

// local is a compile-time record of a declared block-scoped variable.
// Its position in Parser.locals equals the runtime stack slot the
// value lives in, so resolving a local never emits a name lookup.
type local struct {
	name  string
	depth int
}

// Parser is both parser and compiler: it walks the token stream exactly
// once, emitting bytecode into chunk as each construct is recognized.
type Parser struct {
	lexer *lexer.Lexer
	chunk *chunk.Chunk

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    *multierror.Error

	locals     []local
	scopeDepth int
}

// Compile compiles source into a Chunk. On failure it returns a non-nil
// error (a *multierror.Error) aggregating every diagnostic collected
// during the pass; the returned chunk should be discarded in that case.
func Compile(source string) (*chunk.Chunk, error) {
	p := &Parser{
		lexer: lexer.New(source),
		chunk: chunk.New(),
	}

	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	p.consume(token.EOF, "Expected end of expression.")

	if p.hadError {
		return nil, p.errors.ErrorOrNil()
	}
	return p.chunk, nil
}

// --- token stream -----------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lexer.ScanToken()
		if p.current.Kind != token.ERROR {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) check(kind token.Kind) bool {
	return p.current.Kind == kind
}

func (p *Parser) match(kind token.Kind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(kind token.Kind, message string) {
	if p.current.Kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// --- declarations & statements -----------------------------------------

func (p *Parser) declaration() {
	if p.match(token.VAR) {
		p.varDeclaration()
	} else {
		p.statement()
	}

	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("Expected variable name.")

	if p.match(token.EQUAL) {
		p.expression()
	} else {
		p.emitOpcode(chunk.OpNil)
	}
	p.consume(token.SEMICOLON, "Expected ';' after variable declaration.")

	p.defineVariable(global)
}

func (p *Parser) statement() {
	switch {
	case p.match(token.PRINT):
		p.printStatement()
	case p.match(token.RETURN):
		p.returnStatement()
	case p.match(token.IF):
		p.ifStatement()
	case p.match(token.LEFT_BRACE):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expected ';' after value.")
	p.emitOpcode(chunk.OpPrint)
}

func (p *Parser) returnStatement() {
	if p.match(token.SEMICOLON) {
		p.emitOpcode(chunk.OpNil)
		p.emitOpcode(chunk.OpReturn)
		return
	}
	p.expression()
	p.consume(token.SEMICOLON, "Expected ';' after return value.")
	p.emitOpcode(chunk.OpReturn)
}

// ifStatement lowers `if (cond) thenBranch [else elseBranch]` into the
// standard forward-jump pattern: JUMP_IF_FALSE over the then-branch,
// POP the condition, then-branch, JUMP past the else-branch, patch the
// first jump, POP the condition again for the taken-else path, else
// branch, patch the second jump.
func (p *Parser) ifStatement() {
	p.consume(token.LEFT_PAREN, "Expected '(' after 'if'.")
	p.expression()
	p.consume(token.RIGHT_PAREN, "Expected ')' after condition.")

	thenJump := p.emitJump(chunk.OpJumpIfFalse)
	p.emitOpcode(chunk.OpPop)
	p.statement()

	elseJump := p.emitJump(chunk.OpJump)

	p.patchJump(thenJump)
	p.emitOpcode(chunk.OpPop)

	if p.match(token.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) block() {
	for !p.check(token.RIGHT_BRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RIGHT_BRACE, "Expected '}' after block.")
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(token.SEMICOLON, "Expected ';' after expression.")
	p.emitOpcode(chunk.OpPop)
}

// --- expressions ---------------------------------------------------------

func (p *Parser) expression() {
	p.parsePrecedence(PrecAssignment)
}

func (p *Parser) parsePrecedence(precedence Precedence) {
	p.advance()
	canAssign := precedence <= PrecAssignment

	prefix := ruleFor(p.previous.Kind).prefix
	if prefix == nil {
		p.error("Expected expression.")
		return
	}
	prefix(p, canAssign)

	for precedence <= ruleFor(p.current.Kind).precedence {
		p.advance()
		infix := ruleFor(p.previous.Kind).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(token.EQUAL) {
		p.error("Invalid assignment target.")
	}
}

func (p *Parser) grouping(_ bool) {
	p.expression()
	p.consume(token.RIGHT_PAREN, "Expected ')' after expression.")
}

func (p *Parser) number(_ bool) {
	value, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(chunk.NumberConstant(value))
}

func (p *Parser) string(_ bool) {
	p.emitConstant(chunk.StringConstant(p.previous.Lexeme))
}

func (p *Parser) literal(_ bool) {
	switch p.previous.Kind {
	case token.NIL:
		p.emitOpcode(chunk.OpNil)
	case token.TRUE:
		p.emitOpcode(chunk.OpTrue)
	case token.FALSE:
		p.emitOpcode(chunk.OpFalse)
	}
}

func (p *Parser) unary(_ bool) {
	kind := p.previous.Kind
	p.parsePrecedence(PrecUnary)

	switch kind {
	case token.BANG:
		p.emitOpcode(chunk.OpNot)
	case token.MINUS:
		p.emitOpcode(chunk.OpNegate)
	}
}

func (p *Parser) binary(_ bool) {
	kind := p.previous.Kind
	rule := ruleFor(kind)
	p.parsePrecedence(rule.precedence + 1)

	switch kind {
	case token.PLUS:
		p.emitOpcode(chunk.OpAdd)
	case token.MINUS:
		p.emitOpcode(chunk.OpSubtract)
	case token.STAR:
		p.emitOpcode(chunk.OpMultiply)
	case token.SLASH:
		p.emitOpcode(chunk.OpDivide)
	case token.BANG_EQUAL:
		p.emitOpcode(chunk.OpEqual)
		p.emitOpcode(chunk.OpNot)
	case token.EQUAL_EQUAL:
		p.emitOpcode(chunk.OpEqual)
	case token.GREATER:
		p.emitOpcode(chunk.OpGreater)
	case token.GREATER_EQUAL:
		p.emitOpcode(chunk.OpLess)
		p.emitOpcode(chunk.OpNot)
	case token.LESS:
		p.emitOpcode(chunk.OpLess)
	case token.LESS_EQUAL:
		p.emitOpcode(chunk.OpGreater)
		p.emitOpcode(chunk.OpNot)
	}
}

func (p *Parser) variable(canAssign bool) {
	p.namedVariable(p.previous, canAssign)
}

func (p *Parser) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.Opcode
	index := p.resolveLocal(name.Lexeme)
	if index >= 0 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else {
		index = p.identifierConstant(name.Lexeme)
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && p.match(token.EQUAL) {
		p.expression()
		p.emitOpcode(setOp)
		p.emitByte(byte(index))
	} else {
		p.emitOpcode(getOp)
		p.emitByte(byte(index))
	}
}

// --- variable resolution -------------------------------------------------

func (p *Parser) parseVariable(message string) int {
	p.consume(token.IDENTIFIER, message)

	p.declareVariable()
	if p.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.previous.Lexeme)
}

func (p *Parser) identifierConstant(name string) int {
	return p.chunk.AddConstant(chunk.StringConstant(name))
}

func (p *Parser) declareVariable() {
	if p.scopeDepth == 0 {
		return
	}

	name := p.previous.Lexeme
	for i := len(p.locals) - 1; i >= 0; i-- {
		l := p.locals[i]
		if l.depth != -1 && l.depth < p.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Variable with this name already declared in this scope.")
			return
		}
	}
	p.addLocal(name)
}

func (p *Parser) addLocal(name string) {
	if len(p.locals) == chunk.MaxConstants {
		p.error("Too many local variables in scope.")
		return
	}
	p.locals = append(p.locals, local{name: name, depth: -1})
}

// resolveLocal returns the stack slot of the nearest local named name,
// or -1 if it must be a global. depth == -1 marks a local whose
// initializer is still being compiled; referencing it there is an
// error (`var a = a;`).
func (p *Parser) resolveLocal(name string) int {
	for i := len(p.locals) - 1; i >= 0; i-- {
		if p.locals[i].name == name {
			if p.locals[i].depth == -1 {
				p.error("Cannot read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (p *Parser) markInitialized() {
	if p.scopeDepth == 0 {
		return
	}
	p.locals[len(p.locals)-1].depth = p.scopeDepth
}

func (p *Parser) defineVariable(global int) {
	if p.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpcode(chunk.OpDefineGlobal)
	p.emitByte(byte(global))
}

// --- scopes ---------------------------------------------------------------

func (p *Parser) beginScope() {
	p.scopeDepth++
}

// endScope emits exactly one POP per local leaving scope, in reverse
// declaration order; no "define local" opcode is ever needed since a
// local's slot is simply where its initializer left it.
func (p *Parser) endScope() {
	p.scopeDepth--

	for len(p.locals) > 0 && p.locals[len(p.locals)-1].depth > p.scopeDepth {
		p.emitOpcode(chunk.OpPop)
		p.locals = p.locals[:len(p.locals)-1]
	}
}

// --- emission --------------------------------------------------------------

func (p *Parser) emitByte(b byte) {
	p.chunk.WriteByte(b, p.previous.Line)
}

func (p *Parser) emitOpcode(op chunk.Opcode) {
	p.chunk.WriteOpcode(op, p.previous.Line)
}

func (p *Parser) emitConstant(c chunk.Constant) {
	if len(p.chunk.Constants) >= chunk.MaxConstants {
		p.error("Too many constants in one chunk.")
		return
	}
	index := p.chunk.AddConstant(c)
	p.emitOpcode(chunk.OpConstant)
	p.emitByte(byte(index))
}

// emitJump writes op followed by a two-byte placeholder operand and
// returns the offset of the first placeholder byte, to be passed to
// patchJump once the jump target is known.
func (p *Parser) emitJump(op chunk.Opcode) int {
	p.emitOpcode(op)
	p.emitByte(0xFF)
	p.emitByte(0xFF)
	return p.chunk.Len() - 2
}

func (p *Parser) patchJump(offset int) {
	if err := p.chunk.PatchJump(offset); err != nil {
		p.error(err.Error())
	}
}

// --- error reporting ---------------------------------------------------

func (p *Parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *Parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *Parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	var where string
	switch tok.Kind {
	case token.EOF:
		where = " at end"
	case token.ERROR:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	p.errors = multierror.Append(p.errors, fmt.Errorf("[line %d] Error%s: %s", tok.Line, where, message))
}

// synchronize fast-forwards past the rest of a broken statement so that
// one syntax error does not cascade into a wall of spurious ones.
func (p *Parser) synchronize() {
	p.panicMode = false

	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.SEMICOLON {
			return
		}
		switch p.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF,
			token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}
