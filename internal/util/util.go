// Package util provides small string helpers shared by the console commands.
package util

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by SplitArgs when a quoted argument never closes.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// SplitArgs splits a command line on whitespace. Double quoted arguments may
// contain spaces, and "" inside quotes stands for one literal quote.
// Input format: open p-1 "Harbor view ""north"""
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		b       strings.Builder
		inQuote bool
		started bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuote && i+1 < len(line) && line[i+1] == '"':
			b.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			if started {
				args = append(args, b.String())
				b.Reset()
				started = false
			}
		default:
			b.WriteByte(c)
			started = true
		}
	}
	if inQuote {
		return nil, ErrUnterminatedQuote
	}
	if started {
		args = append(args, b.String())
	}
	return args, nil
}

// JoinArgs joins arguments back into one string, used for free text such as
// captions.
func JoinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
