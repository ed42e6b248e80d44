package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// watchPrompt asks the operator for a quit confirmation on in and calls
// cancel once "y" is entered. It returns without cancelling when in is
// exhausted.
func watchPrompt(ctx context.Context, in io.Reader, out io.Writer, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(in)

	for {
		if ctx.Err() != nil {
			return
		}

		fmt.Fprintln(out, "Enter 'y' to quit.")
		if !scanner.Scan() {
			return
		}

		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
			fmt.Fprintln(out, "tftpd: stopping, please wait.")
			cancel()
			return
		}
	}
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}
