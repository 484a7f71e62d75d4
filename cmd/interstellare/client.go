package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	gonet "github.com/interstellare/server/internal/net"
)

// runWatch prints every event of /simulation until interrupted or the
// server closes the stream.
func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL()+"/simulation", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connect: %s", resp.Status)
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()
	r := bufio.NewReader(resp.Body)
	for {
		f, err := gonet.ReadEvent(r)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fmt.Fprintf(out, "%d %s %s\n", f.ID, f.Event, f.Data)
		out.Flush()
	}
}

// runSend posts one command envelope to /input.
func runSend(cmd *cobra.Command, args []string) error {
	body := []byte(args[0])
	if args[0] == "-" {
		var err error
		if body, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL()+"/input", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send: %s", resp.Status)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "queued")
	return nil
}

func baseURL() string {
	if strings.Contains(serverAddr, "://") {
		return strings.TrimSuffix(serverAddr, "/")
	}
	return "http://" + serverAddr
}
