// Command golisp-embed demonstrates embedding a Context in a host program:
// construct one, feed it a source string, and print each top-level form's
// result. It is not a REPL (spec section 1 places the interactive driver
// out of scope) — it runs a fixed script once and exits.
package main

import (
	"fmt"
	"os"

	"github.com/rzubek/golisp"
)

const demoSource = `
(set! fact (lambda (x) (if (<= x 1) 1 (* x (fact (- x 1))))))
(fact 10)
(let ((sum 0)) (dotimes (i 5) (set! sum (+ sum i))) sum)
` + "`(1 ,(list 2 3) ,@(list 4 5))"

func main() {
	ctx := lisp.NewContext(lisp.Options{})

	results := ctx.Eval(demoSource)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s => error: %v\n", r.Input, r.Err)
			continue
		}
		fmt.Printf("%s => %s  (%s)\n", r.Input, r.Value, r.Elapsed)
	}
}
