package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	"github.com/YoshitsuguKoike/gatechain/internal/application/pipeline"
	"github.com/YoshitsuguKoike/gatechain/internal/di"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/catalog"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

const (
	// maxRequestLine bounds one NDJSON request
	maxRequestLine = 4 << 20

	shutdownTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve NDJSON requests on stdin, one response per line on stdout",
		Long: "Read one JSON request per line from stdin and write one JSON response per\n" +
			"line to stdout until stdin closes or the process is interrupted. Stale\n" +
			"sessions are swept in the background, the prompt catalog is reloaded when\n" +
			"its file changes and, with a metrics address, Prometheus metrics are\n" +
			"served over HTTP.",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = globalConfig.MetricsAddr()
			}
			container, err := newContainer(ctx, metricsAddr != "")
			if err != nil {
				return err
			}
			defer container.Close()

			return serve(ctx, container, c.InOrStdin(), c.OutOrStdout(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")
	return cmd
}

// serve runs the request loop alongside the catalog watcher and the metrics
// server. It returns when in is exhausted, ctx ends or a component fails.
func serve(ctx context.Context, c *di.Container, in io.Reader, out io.Writer, metricsAddr string) error {
	logger := c.Logger()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	c.Start()

	watcher, err := catalog.NewWatcher(c.Catalog(), catalog.DefaultDebounce, logger, func(err error) {
		if err != nil {
			logger.Warnw("prompt catalog reload failed; keeping previous prompts", "error", err)
		}
	})
	if err != nil {
		logger.Warnw("prompt catalog hot reload unavailable", "error", err)
	} else {
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logger.Warnw("prompt catalog hot reload unavailable", "path", c.Catalog().Path(), "error", err)
				watcher.Stop()
			}
			return nil
		})
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.Metrics().Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Infow("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	health := &app.Health{PID: os.Getpid(), OK: true}
	record := func(resp pipeline.Response) {
		health.Requests++
		health.LastChainID = resp.ChainID
		health.LastStatus = string(resp.Status)
		health.OK = resp.Status != pipeline.StatusError
		health.Error = ""
		if resp.Error != nil {
			health.Error = resp.Error.Message
		}
		if err := app.WriteHealth(c.Fs(), c.Paths().Health, health); err != nil {
			logger.Warnw("failed to write health snapshot", "path", c.Paths().Health, "error", err)
		}
	}

	g.Go(func() error {
		defer cancel()
		return serveLoop(gctx, c.Engine(), in, out, logger, record)
	})
	return g.Wait()
}

// serveLoop answers each NDJSON request line in order. onResponse sees every
// response after it is written.
func serveLoop(ctx context.Context, engine *pipeline.Engine, in io.Reader, out io.Writer, logger logging.Logger, onResponse func(pipeline.Response)) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), maxRequestLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read requests: %w", err)
					}
				default:
				}
				logger.Debugw("request stream closed")
				return nil
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			resp := handleLine(ctx, engine, line)
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if onResponse != nil {
				onResponse(resp)
			}
		}
	}
}

func handleLine(ctx context.Context, engine *pipeline.Engine, line []byte) pipeline.Response {
	var req pipeline.Request
	if err := json.Unmarshal(line, &req); err != nil {
		msg := fmt.Sprintf("malformed request: %v", err)
		return pipeline.Response{
			Status:  pipeline.StatusError,
			Content: msg,
			Error:   &pipeline.ErrorInfo{Kind: "invalid_request", Message: msg},
		}
	}
	return engine.Handle(ctx, req)
}
