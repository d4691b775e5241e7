package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit formats an error message the CLI prints before exiting with code.
func Exit(code int, msg string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
