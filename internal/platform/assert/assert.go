// Package assert aborts loudly on programming errors: broken invariants that
// no legitimate runtime condition can produce.
package assert

import (
	"fmt"
	"log"

	"github.com/ttacon/chalk"
)

// Check panics with err when it is non-nil.
func Check(err error, msg string) {
	if err != nil {
		log.Print(chalk.Red.Color(msg + ": " + err.Error()))
		panic(fmt.Errorf("%s: %w", msg, err))
	}
}

// Assert panics when ok is false.
func Assert(ok bool, msg string) {
	if !ok {
		log.Print(chalk.Red.Color(msg))
		panic(msg)
	}
}
