package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax marks a row_level expression that does not match any known
// grammar form. This is never fatal: Parse folds it into a KindUnrecognized
// Rule that always passes, and the caller logs a warning.
var ErrSyntax = errors.New("rules: syntax error")

func errSyntax(detail string) error {
	return fmt.Errorf("%w: %s", ErrSyntax, detail)
}

// compareOps is the recognized set of comparison operators. The lexer's
// lexOp consumes a trailing "=", so "<=" and ">=" arrive here as single
// tokens rather than "<"/">" followed by a stray "=".
var compareOps = map[string]CompareOp{
	"<=": OpLE, "<": OpLT, ">=": OpGE, ">": OpGT, "=": OpEQ, "!=": OpNE,
}

// Parse parses a single row_level rule expression. It never returns an
// error: an expression that does not match any recognized grammar form
// becomes a KindUnrecognized Rule, which Eval always passes. Unrecognized
// syntax is treated as a warning, not a rejection.
func Parse(expr string) Rule {
	r, err := parse(expr)
	if err != nil {
		return Rule{Kind: KindUnrecognized, Raw: expr}
	}

	return r
}

func parse(expr string) (Rule, error) {
	lx := newLexer(expr)

	field, err := lx.next()
	if err != nil {
		return Rule{}, err
	}

	if field.kind != tokIdent {
		return Rule{}, errSyntax("expected field name")
	}

	tok, err := lx.next()
	if err != nil {
		return Rule{}, err
	}

	switch strings.ToLower(tok.text) {
	case "is":
		return parseIsNull(field.text, lx, expr)
	case "in":
		return parseIn(field.text, false, lx, expr)
	case "not":
		next, err := lx.next()
		if err != nil {
			return Rule{}, err
		}

		if !strings.EqualFold(next.text, "in") {
			return Rule{}, errSyntax("expected 'in' after 'not'")
		}

		return parseIn(field.text, true, lx, expr)
	case "matches":
		return parseMatches(field.text, lx, expr)
	default:
		return parseCompare(field.text, tok, lx, expr)
	}
}

func parseIsNull(field string, lx *lexer, expr string) (Rule, error) {
	tok, err := lx.next()
	if err != nil {
		return Rule{}, err
	}

	negate := false

	if strings.EqualFold(tok.text, "not") {
		negate = true

		tok, err = lx.next()
		if err != nil {
			return Rule{}, err
		}
	}

	if !strings.EqualFold(tok.text, "null") {
		return Rule{}, errSyntax("expected 'null'")
	}

	if err := expectEOF(lx); err != nil {
		return Rule{}, err
	}

	return Rule{Kind: KindIsNull, Field: field, Negate: negate, Raw: expr}, nil
}

func parseIn(field string, negate bool, lx *lexer, expr string) (Rule, error) {
	if err := expectKind(lx, tokLParen); err != nil {
		return Rule{}, err
	}

	var values []Literal

	for {
		tok, err := lx.next()
		if err != nil {
			return Rule{}, err
		}

		lit, err := literalFromToken(tok)
		if err != nil {
			return Rule{}, err
		}

		values = append(values, lit)

		tok, err = lx.next()
		if err != nil {
			return Rule{}, err
		}

		if tok.kind == tokRParen {
			break
		}

		if tok.kind != tokComma {
			return Rule{}, errSyntax("expected ',' or ')'")
		}
	}

	if err := expectEOF(lx); err != nil {
		return Rule{}, err
	}

	return Rule{Kind: KindIn, Field: field, Negate: negate, Values: values, Raw: expr}, nil
}

func parseMatches(field string, lx *lexer, expr string) (Rule, error) {
	tok, err := lx.next()
	if err != nil {
		return Rule{}, err
	}

	if tok.kind != tokString {
		return Rule{}, errSyntax("expected quoted regex")
	}

	if err := expectEOF(lx); err != nil {
		return Rule{}, err
	}

	return Rule{Kind: KindMatches, Field: field, Pattern: tok.text, Raw: expr}, nil
}

func parseCompare(field string, opTok token, lx *lexer, expr string) (Rule, error) {
	if opTok.kind != tokOp {
		return Rule{}, errSyntax("expected comparison operator")
	}

	op, ok := compareOps[opTok.text]
	if !ok {
		return Rule{}, errSyntax("unknown operator " + opTok.text)
	}

	next, err := lx.next()
	if err != nil {
		return Rule{}, err
	}

	if strings.EqualFold(next.text, "current_timestamp") {
		if err := expectKind(lx, tokLParen); err != nil {
			return Rule{}, err
		}

		if err := expectKind(lx, tokRParen); err != nil {
			return Rule{}, err
		}

		if err := expectEOF(lx); err != nil {
			return Rule{}, err
		}

		return Rule{Kind: KindCompare, Field: field, Op: op, IsCurrentTimestamp: true, Raw: expr}, nil
	}

	lit, err := literalFromToken(next)
	if err != nil {
		return Rule{}, err
	}

	if err := expectEOF(lx); err != nil {
		return Rule{}, err
	}

	return Rule{Kind: KindCompare, Field: field, Op: op, Literal: lit, Raw: expr}, nil
}

func literalFromToken(tok token) (Literal, error) {
	switch tok.kind {
	case tokString:
		return Literal{IsString: true, Str: tok.text}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Literal{}, errSyntax("invalid number " + tok.text)
		}

		return Literal{Num: n}, nil
	default:
		return Literal{}, errSyntax("expected literal")
	}
}

func expectKind(lx *lexer, kind tokenKind) error {
	tok, err := lx.next()
	if err != nil {
		return err
	}

	if tok.kind != kind {
		return errSyntax("unexpected token " + tok.text)
	}

	return nil
}

func expectEOF(lx *lexer) error {
	tok, err := lx.next()
	if err != nil {
		return err
	}

	if tok.kind != tokEOF {
		return errSyntax("trailing input " + tok.text)
	}

	return nil
}
