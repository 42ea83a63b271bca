// Command groveload is a tiny line-oriented REPL driving a one-Grove
// Forest over the examples/account schema. Adapted from DaemonDB's
// main.go REPL shape (bufio.Scanner over stdin, one statement per line),
// rewritten to drive Grove/Forest operations instead of a SQL executor.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"grovedb/examples/account"
	"grovedb/forest"
	"grovedb/grove"
	"grovedb/internal/telemetry"
)

const transfersPerBatch = 8

func main() {
	log := telemetry.New("groveload")

	dir := "./groveload-data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	f, err := forest.Open(dir, forest.Options{NodePoolCapacity: 256})
	if err != nil {
		fmt.Fprintf(os.Stderr, "groveload: open forest: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	gr, err := account.NewGrove(f, transfersPerBatch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "groveload: build account grove: %v\n", err)
		os.Exit(1)
	}

	f.Open(func(err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "groveload: open: %v\n", err)
		}
	})
	f.Tick()

	log.Printf("ready dir=%s", dir)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("grove> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			break
		}
		if err := execute(f, gr, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func execute(f *forest.Forest, gr *grove.Grove[account.Account], line string) error {
	toks := tokenizeLine(line)
	if len(toks) == 0 {
		return nil
	}

	switch toks[0].kind {
	case putTok:
		a, err := parseAccount(toks[1:])
		if err != nil {
			return err
		}
		gr.Put(a)
		return nil

	case getTok:
		ts, err := parseUint(toks, 1)
		if err != nil {
			return err
		}
		a, ok := gr.Get(ts)
		if !ok {
			fmt.Println("(not found)")
			return nil
		}
		fmt.Printf("ts=%d id=(%d,%d) ledger=%d flags=%d\n", a.Timestamp, a.ID[0], a.ID[1], a.Ledger, a.Flags)
		return nil

	case removeTok:
		a, err := parseAccount(toks[1:])
		if err != nil {
			return err
		}
		return gr.Remove(a)

	case tickTok:
		f.Tick()
		return nil

	case checkpointTok:
		var cpErr error
		f.Checkpoint(func(err error) { cpErr = err })
		f.Tick()
		return cpErr

	default:
		return fmt.Errorf("unrecognized command %q", line)
	}
}

func parseAccount(toks []token) (account.Account, error) {
	if len(toks) != 5 {
		return account.Account{}, fmt.Errorf("expected ts idHi idLo ledger flags, got %d fields", len(toks))
	}
	ts, err := strconv.ParseUint(toks[0].value, 10, 64)
	if err != nil {
		return account.Account{}, fmt.Errorf("timestamp: %w", err)
	}
	idHi, err := strconv.ParseUint(toks[1].value, 10, 64)
	if err != nil {
		return account.Account{}, fmt.Errorf("id high half: %w", err)
	}
	idLo, err := strconv.ParseUint(toks[2].value, 10, 64)
	if err != nil {
		return account.Account{}, fmt.Errorf("id low half: %w", err)
	}
	ledger, err := strconv.ParseUint(toks[3].value, 10, 32)
	if err != nil {
		return account.Account{}, fmt.Errorf("ledger: %w", err)
	}
	flags, err := strconv.ParseUint(toks[4].value, 10, 16)
	if err != nil {
		return account.Account{}, fmt.Errorf("flags: %w", err)
	}
	return account.Account{
		Timestamp: ts,
		ID:        [2]uint64{idHi, idLo},
		Ledger:    uint32(ledger),
		Flags:     uint16(flags),
	}, nil
}

func parseUint(toks []token, idx int) (uint64, error) {
	if idx >= len(toks) {
		return 0, fmt.Errorf("expected an argument")
	}
	return strconv.ParseUint(toks[idx].value, 10, 64)
}
