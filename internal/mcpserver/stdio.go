package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// ServeStdio runs the server loop over newline-delimited JSON on in/out.
// Exactly one concurrent client is supported per spec.md §4.5 — this
// matches the process model of a headless vaultd instance launched per
// desktop-shell session.
func ServeStdio(ctx context.Context, s *Server, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)

		resp := s.HandleMessage(ctx, lineCopy)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.Logger.Error("stdio transport read error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
