package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"scribe/buffer"
	"scribe/config"
	"scribe/engine"
	"scribe/metrics"
	"scribe/surface"

	"github.com/neovim/go-client/nvim"
	"github.com/spf13/cobra"
)

var debugImmediateShutdown bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the suggestion daemon",
	Long: `Runs the daemon that serves editor connections on a unix socket next to
the executable. Each connection gets its own engine. The daemon exits once no
client has been connected for a while.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&debugImmediateShutdown, "debug-immediate-shutdown", false, "exit as soon as the last client disconnects")
}

func runDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Close()
	log.Printf("config: %+v", redacted(cfg))

	daemon := NewDaemon(cfg)
	return daemon.Start()
}

// redacted returns a copy of cfg that is safe to log
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

type Daemon struct {
	mu          sync.Mutex
	config      *config.Config
	engines     map[*engine.Engine]struct{}
	metrics     *metrics.Tracker
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDaemon(cfg *config.Config) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:     cfg,
		engines:    make(map[*engine.Engine]struct{}),
		metrics:    metrics.NewTracker(cfg.MetricsURL, cfg.APIKey, "scribe-nvim", filepath.Dir(getPidPath())),
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	log.Printf("daemon listening on socket: %s", d.socketPath)

	d.setupShutdownHandling()
	d.watchConfig()

	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	log.Printf("daemon shutting down...")
	d.metrics.Wait()
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Printf("received shutdown signal")
			d.Stop()
		case <-d.ctx.Done():
		}
	}()
}

// watchConfig pushes config file changes into every live engine
func (d *Daemon) watchConfig() {
	if configPath == "" {
		return
	}
	w, err := config.NewWatcher(configPath, d.applyConfig)
	if err != nil {
		log.Printf("warning: config hot reload disabled: %v", err)
		return
	}
	if err := w.Start(d.ctx); err != nil {
		log.Printf("warning: config hot reload disabled: %v", err)
		return
	}
	go func() {
		<-d.ctx.Done()
		w.Stop()
	}()
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
	ec := engineConfig(cfg)
	for eng := range d.engines {
		eng.SetConfig(ec)
	}
	log.Printf("config reloaded for %d sessions", len(d.engines))
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return // Server is shutting down
			default:
				log.Printf("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		log.Printf("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

// handleConnection runs one editing session: an engine over a fresh buffer,
// bound to the connecting editor until it disconnects.
func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		log.Printf("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	d.mu.Lock()
	cfg := d.config
	d.mu.Unlock()

	eng, err := engine.NewEngine(newProvider(cfg), buffer.New(), engineConfig(cfg), nil, d.metrics)
	if err != nil {
		log.Printf("error creating engine: %v", err)
		return
	}

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		log.Printf("error creating nvim client: %v", err)
		return
	}

	s, err := surface.New(n, eng, surface.Config{NsID: cfg.NsID})
	if err != nil {
		log.Printf("error creating surface: %v", err)
		return
	}
	if err := s.Start(); err != nil {
		log.Printf("error starting surface: %v", err)
		s.Close()
		return
	}

	d.track(eng)
	eng.Start(d.ctx)
	defer func() {
		d.untrack(eng)
		eng.Stop()
		s.Close()
	}()

	served := make(chan struct{})
	defer close(served)
	go func() {
		select {
		case <-d.ctx.Done():
			n.Close()
		case <-served:
		}
	}()

	if err := n.Serve(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		log.Printf("error serving connection: %v", err)
	}
}

func (d *Daemon) track(eng *engine.Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engines[eng] = struct{}{}
}

func (d *Daemon) untrack(eng *engine.Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.engines, eng)
}

// monitorIdleShutdown stops the daemon once no client has been connected for
// a full idle period. The first period is longer to give the spawning editor
// time to connect.
func (d *Daemon) monitorIdleShutdown() {
	first, idle := 30*time.Second, 5*time.Second
	if debugImmediateShutdown {
		first, idle = time.Second, time.Second
	}

	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
		}

		clients := atomic.LoadInt64(&d.clientCount)
		if clients == 0 {
			log.Printf("no clients connected, shutting down daemon")
			d.Stop()
			return
		}
		timer.Reset(idle)
	}
}

// Stop closes the listener and ends every session
func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		log.Printf("warning: could not write PID file: %v", err)
	}
	log.Printf("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not remove PID file: %v", err)
	}
}
