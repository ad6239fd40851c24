package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"scribe/logger"
)

const (
	daemonStartTimeout = 5 * time.Second
	daemonPollInterval = 100 * time.Millisecond
)

// Client relays an editor's stdio channel to the daemon socket
type Client struct {
	socketPath string
	stdin      io.Reader
	stdout     io.Writer
}

func NewClient() *Client {
	return &Client{
		socketPath: getSocketPath(),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

// Connect relays until the daemon closes the connection
func (c *Client) Connect() error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return relay(conn, c.stdin, c.stdout)
}

// relay copies in to conn and conn to out. It returns when conn stops
// producing output; closing in ends the write side only.
func relay(conn net.Conn, in io.Reader, out io.Writer) error {
	go func() {
		if _, err := io.Copy(conn, in); err != nil {
			logger.Debug("relay: stdin copy ended: %v", err)
		}
		if uc, ok := conn.(*net.UnixConn); ok {
			uc.CloseWrite()
			return
		}
		conn.Close()
	}()

	_, err := io.Copy(out, conn)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) EnsureDaemonRunning() error {
	if running, pid := isDaemonRunning(); running {
		logger.Debug("daemon already running with PID %d", pid)
		return nil
	}
	return c.startDaemon()
}

// startDaemon launches a detached daemon with the same flags and waits for
// its socket to appear.
func (c *Client) startDaemon() error {
	logger.Debug("starting daemon...")

	args := []string{os.Args[0], "daemon", "--config", configPath}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if _, err := os.StartProcess(os.Args[0], args, &os.ProcAttr{
		Env:   os.Environ(),
		Files: []*os.File{nil, nil, nil},
	}); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if c.ready() {
			logger.Debug("daemon started successfully")
			return nil
		}
		time.Sleep(daemonPollInterval)
	}
	return fmt.Errorf("daemon failed to start within %s", daemonStartTimeout)
}

func (c *Client) ready() bool {
	if running, _ := isDaemonRunning(); !running {
		return false
	}
	_, err := os.Stat(c.socketPath)
	return err == nil
}
