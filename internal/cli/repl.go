// Package cli is the interactive REPL front end, sharing the turn driver
// with the HTTP server.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/turn"
)

// REPL reads messages from in and prints replies to out. One REPL session
// is one conversation thread.
type REPL struct {
	driver  *turn.Driver
	metrics *metrics.Registry
	in      io.Reader
	out     io.Writer

	threadID string
	last     *turn.Response
}

func New(driver *turn.Driver, m *metrics.Registry, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		driver:   driver,
		metrics:  m,
		in:       in,
		out:      out,
		threadID: uuid.NewString(),
	}
}

// Run loops until EOF or the exit command. Commands: /metrics prints the
// counter snapshot, /why prints the last turn's decision trail, exit quits.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "TripWise travel assistant. Ask about weather, flights, visas, packing… (/metrics, /why, exit)")
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "exit", "quit":
			fmt.Fprintln(r.out, "Safe travels!")
			return nil
		case "/metrics":
			r.printMetrics()
			continue
		case "/why":
			r.printWhy()
			continue
		}

		resp := r.driver.Handle(ctx, turn.Request{Message: line, ThreadID: r.threadID, Receipts: true})
		r.threadID = resp.ThreadID
		r.last = &resp

		fmt.Fprintln(r.out, resp.Reply)
		if len(resp.Citations) > 0 {
			fmt.Fprintf(r.out, "  sources: %s\n", strings.Join(resp.Citations, ", "))
		}
	}
}

func (r *REPL) printMetrics() {
	raw, err := json.MarshalIndent(r.metrics.Snapshot(), "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, "metrics unavailable: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, string(raw))
}

// printWhy shows the decision trail of the previous turn.
func (r *REPL) printWhy() {
	if r.last == nil {
		fmt.Fprintln(r.out, "no turn yet")
		return
	}
	for _, d := range r.last.Decisions {
		fmt.Fprintln(r.out, "  - "+d)
	}
	if r.last.Receipts != nil {
		fmt.Fprintf(r.out, "  verdict: %s\n", r.last.Receipts.Verdict)
	}
}
