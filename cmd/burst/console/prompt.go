package console

import (
	"io"
	"os"
	"slices"
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

var input io.Reader = os.Stdin

// SetInput replaces the reader prompts answer from.
func SetInput(r io.Reader) {
	input = r
}

// YesOrNo asks question and defaults to No so that destructive writes need
// an explicit answer.
func YesOrNo(question string) (string, error) {
	return Prompt(question, No, Yes)
}

// Prompt reads one line. With constraints the answer is normalized to one of
// them and an empty or unknown answer yields the first.
func Prompt(question string, constraints ...string) (string, error) {
	if len(constraints) > 0 {
		opts := slices.Clone(constraints)
		opts[0] = strings.ToUpper(opts[0])
		question = question + " [" + strings.Join(opts, "/") + "]: "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt: question,
		Stdin:  io.NopCloser(input),
		Stdout: writer,
		Stderr: errWriter,
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if len(constraints) == 0 {
		return response, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	if slices.Contains(constraints, normalized) {
		return normalized, nil
	}
	return constraints[0], nil
}
