package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formstate/pkg/fieldpath"
	"github.com/goliatone/go-formstate/pkg/schema"
	"github.com/goliatone/go-formstate/pkg/visibility"
)

// Evaluator is a small visibility rule language.
//
// Supported forms:
//   - truthiness: `HasNickname`
//   - comparisons: `Kind == "business"`, `Age >= 18`, `.Address.Country != null`
//   - composition: `a && !b`, `(a || b) && c`
//
// Identifiers starting with "." or "[" are paths from the model root. Bare
// identifiers resolve against the record holding the evaluated field, so
// sibling fields can be named directly, and may themselves be dotted
// ("Address.Country"). The "extras." prefix reads Context.Extras.
//
// Parsed rules are cached by their source text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Program
}

func New() *Evaluator { return &Evaluator{cache: make(map[string]*Program)} }

func (e *Evaluator) Eval(fieldPath, rule string, ctx visibility.Context) (bool, error) {
	p, err := e.compile(rule)
	if err != nil {
		return false, err
	}
	return p.Eval(fieldPath, ctx)
}

func (e *Evaluator) compile(rule string) (*Program, error) {
	key := strings.TrimSpace(rule)
	e.mu.RLock()
	p, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}
	p, err := Compile(key)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]*Program)
	}
	e.cache[key] = p
	e.mu.Unlock()
	return p, nil
}

// Program is a parsed rule. The zero program is always visible.
type Program struct {
	source string
	root   exprNode
}

// Compile parses rule. An empty rule compiles to an always-visible program.
func Compile(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return &Program{}, nil
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	root, err := parseExpression(tokens)
	if err != nil {
		return nil, err
	}
	return &Program{source: trimmed, root: root}, nil
}

// String returns the rule source.
func (p *Program) String() string { return p.source }

// Eval runs the program for the field at fieldPath.
func (p *Program) Eval(fieldPath string, ctx visibility.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(scope{field: fieldPath, ctx: ctx})
}

type scope struct {
	field string
	ctx   visibility.Context
}

func (s scope) lookup(identifier string) (any, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(identifier), "extras.") {
		return fieldpath.Get(s.ctx.Extras, fieldpath.Normalize(identifier[len("extras."):]))
	}
	path := fieldpath.Normalize(identifier)
	if identifier[0] != '.' && identifier[0] != '[' {
		path = fieldpath.Parent(s.field) + path
	}
	return fieldpath.Get(s.ctx.Model, path)
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDelimiter(c byte) bool {
	return isSpace(c) || strings.IndexByte("()!=&|<>", c) >= 0
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	peek := func(offset int) byte {
		if i+offset >= len(input) {
			return 0
		}
		return input[i+offset]
	}

	for i < len(input) {
		ch := input[i]
		switch {
		case isSpace(ch):
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokenLParen, raw: "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokenRParen, raw: ")"})
			i++
		case ch == '!' && peek(1) == '=':
			tokens = append(tokens, token{kind: tokenNeq, raw: "!="})
			i += 2
		case ch == '!':
			tokens = append(tokens, token{kind: tokenNot, raw: "!"})
			i++
		case ch == '=':
			if peek(1) != '=' {
				return nil, errors.New("visibility/expr: unexpected '='; use '=='")
			}
			tokens = append(tokens, token{kind: tokenEq, raw: "=="})
			i += 2
		case ch == '<' || ch == '>':
			kind, raw := tokenLt, "<"
			if ch == '>' {
				kind, raw = tokenGt, ">"
			}
			if peek(1) == '=' {
				kind++
				raw += "="
				i++
			}
			tokens = append(tokens, token{kind: kind, raw: raw})
			i++
		case ch == '&' || ch == '|':
			if peek(1) != ch {
				return nil, fmt.Errorf("visibility/expr: unexpected %q; use %q", ch, string([]byte{ch, ch}))
			}
			kind := tokenAnd
			if ch == '|' {
				kind = tokenOr
			}
			tokens = append(tokens, token{kind: kind, raw: input[i : i+2]})
			i += 2
		case ch == '"' || ch == '\'':
			end := i + 1
			for end < len(input) && input[end] != ch {
				if input[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(input) {
				return nil, errors.New("visibility/expr: unterminated string literal")
			}
			body := input[i+1 : end]
			if ch == '\'' {
				body = strings.ReplaceAll(body, `\'`, `'`)
				body = strings.ReplaceAll(body, `"`, `\"`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return nil, fmt.Errorf("visibility/expr: invalid string literal: %w", err)
			}
			tokens = append(tokens, token{kind: tokenString, raw: value})
			i = end + 1
		default:
			start := i
			for i < len(input) && !isDelimiter(input[i]) {
				i++
			}
			tokens = append(tokens, classifyWord(input[start:i]))
		}
	}
	return tokens, nil
}

func classifyWord(raw string) token {
	switch strings.ToLower(raw) {
	case "true", "false":
		return token{kind: tokenBool, raw: strings.ToLower(raw)}
	case "null", "nil":
		return token{kind: tokenNull, raw: "null"}
	}
	if looksLikeNumber(raw) {
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			return token{kind: tokenNumber, raw: raw}
		}
	}
	return token{kind: tokenIdentifier, raw: raw}
}

// looksLikeNumber keeps words such as "Inf" or "NaN" usable as identifiers.
func looksLikeNumber(raw string) bool {
	ch := raw[0]
	return (ch >= '0' && ch <= '9') || ch == '-' || ch == '+'
}

type exprNode interface {
	eval(s scope) (bool, error)
}

type exprOr struct{ left, right exprNode }

func (n exprOr) eval(s scope) (bool, error) {
	ok, err := n.left.eval(s)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(s)
}

type exprAnd struct{ left, right exprNode }

func (n exprAnd) eval(s scope) (bool, error) {
	ok, err := n.left.eval(s)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(s)
}

type exprNot struct{ inner exprNode }

func (n exprNot) eval(s scope) (bool, error) {
	ok, err := n.inner.eval(s)
	return !ok, err
}

type exprTruthy struct{ identifier string }

func (n exprTruthy) eval(s scope) (bool, error) {
	value, ok := s.lookup(n.identifier)
	return ok && truthy(value), nil
}

type exprCompare struct {
	identifier string
	op         token
	literal    token
}

func (n exprCompare) eval(s scope) (bool, error) {
	value, _ := s.lookup(n.identifier)
	ordering := n.op.kind == tokenLt || n.op.kind == tokenLte || n.op.kind == tokenGt || n.op.kind == tokenGte

	switch n.literal.kind {
	case tokenNull:
		if ordering {
			return false, fmt.Errorf("visibility/expr: operator %q does not apply to null", n.op.raw)
		}
		return equality(n.op.kind, value == nil), nil
	case tokenBool:
		if ordering {
			return false, fmt.Errorf("visibility/expr: operator %q does not apply to booleans", n.op.raw)
		}
		return equality(n.op.kind, coerceBool(value) == (n.literal.raw == "true")), nil
	case tokenNumber:
		want, _ := strconv.ParseFloat(n.literal.raw, 64)
		got, ok := coerceNumber(value)
		if !ok {
			if ordering {
				return false, nil
			}
			got = 0
		}
		switch n.op.kind {
		case tokenLt:
			return got < want, nil
		case tokenLte:
			return got <= want, nil
		case tokenGt:
			return got > want, nil
		case tokenGte:
			return got >= want, nil
		}
		return equality(n.op.kind, got == want), nil
	default:
		got := coerceString(value)
		switch n.op.kind {
		case tokenLt:
			return got < n.literal.raw, nil
		case tokenLte:
			return got <= n.literal.raw, nil
		case tokenGt:
			return got > n.literal.raw, nil
		case tokenGte:
			return got >= n.literal.raw, nil
		}
		return equality(n.op.kind, got == n.literal.raw), nil
	}
}

func equality(op tokenKind, equal bool) bool {
	if op == tokenNeq {
		return !equal
	}
	return equal
}

type tokenStream struct {
	tokens []token
	pos    int
}

func parseExpression(tokens []token) (exprNode, error) {
	stream := &tokenStream{tokens: tokens}
	node, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}
	return node, nil
}

func parseOr(stream *tokenStream) (exprNode, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = exprOr{left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (exprNode, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = exprAnd{left: left, right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (exprNode, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return exprNot{inner: inner}, nil
	}
	return parsePrimary(stream)
}

func parsePrimary(stream *tokenStream) (exprNode, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("visibility/expr: missing closing ')'")
		}
		return inner, nil
	}

	ident, ok := stream.next()
	if !ok {
		return nil, errors.New("visibility/expr: empty expression")
	}
	if ident.kind != tokenIdentifier {
		return nil, fmt.Errorf("visibility/expr: expected identifier, got %q", ident.raw)
	}
	if _, err := fieldpath.Parse(fieldpath.Normalize(strings.TrimPrefix(ident.raw, "extras."))); err != nil {
		return nil, fmt.Errorf("visibility/expr: identifier %q: %w", ident.raw, err)
	}

	op, ok := stream.peek()
	if !ok || op.kind < tokenEq || op.kind > tokenGte {
		return exprTruthy{identifier: ident.raw}, nil
	}
	stream.pos++
	lit, ok := stream.next()
	if !ok {
		return nil, errors.New("visibility/expr: missing literal")
	}
	switch lit.kind {
	case tokenString, tokenNumber, tokenBool, tokenNull:
	case tokenIdentifier:
		// Bare words compare as strings.
		lit.kind = tokenString
	default:
		return nil, fmt.Errorf("visibility/expr: expected literal, got %q", lit.raw)
	}
	return exprCompare{identifier: ident.raw, op: op, literal: lit}, nil
}

func (s *tokenStream) match(kind tokenKind) bool {
	tok, ok := s.peek()
	if !ok || tok.kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) peek() (token, bool) {
	if s.pos >= len(s.tokens) {
		return token{}, false
	}
	return s.tokens[s.pos], true
}

func (s *tokenStream) next() (token, bool) {
	tok, ok := s.peek()
	if ok {
		s.pos++
	}
	return tok, ok
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	if f, ok := schema.AsFloat(value); ok {
		return f != 0
	}
	return true
}

func coerceBool(value any) bool {
	if s, ok := value.(string); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return truthy(value)
}

func coerceNumber(value any) (float64, bool) {
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return schema.AsFloat(value)
}

func coerceString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(value)
	}
}
