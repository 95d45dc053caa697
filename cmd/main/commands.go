package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CTAG07/tundra/pkg/tundra"
	"github.com/fatih/color"
	"github.com/natefinch/atomic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// app bundles what every command needs: the loaded config, a logger and an
// engine wired to the configured cache backend.
type app struct {
	config *Config
	logger *slog.Logger
	engine *tundra.Engine
	close  func()
}

func setupApp(cmd *cobra.Command, reg prometheus.Registerer) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	config, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		config.Engine.BaseDir = dir
	}

	logger := newLogger(config)
	store, closeStore, err := openStore(config.Cache, logger)
	if err != nil {
		return nil, err
	}

	opts := []tundra.Option{tundra.WithStore(store)}
	if reg != nil {
		opts = append(opts, tundra.WithRegisterer(reg))
	}
	engine, err := tundra.NewEngine(logger, config.Engine, opts...)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create template engine: %w", err)
	}
	return &app{config: config, logger: logger, engine: engine, close: closeStore}, nil
}

// readData decodes the render data object from path, or JSON from stdin when
// path is "-". Files ending in .yaml or .yml are read as YAML. An empty path
// means no data.
func readData(path string, stdin io.Reader) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var data map[string]any
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(r).Decode(&data)
	default:
		err = json.NewDecoder(r).Decode(&data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse data file: %w", err)
	}
	return data, nil
}

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render NAME",
		Short: "Render a template",
		Long:  `Renders the named template from the template directory against an optional JSON data file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataPath, _ := cmd.Flags().GetString("data")
			outPath, _ := cmd.Flags().GetString("out")

			a, err := setupApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()

			data, err := readData(dataPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			p, err := a.engine.Compile(ctx, args[0])
			if err != nil {
				return err
			}
			for _, problem := range p.Problems {
				a.logger.Warn("Template resolved with problems", "template", args[0], "problem", problem)
			}
			out, err := a.engine.Render(ctx, args[0], data)
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			}
			if err = atomic.WriteFile(outPath, strings.NewReader(out)); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			a.logger.Info("Rendered template", "template", args[0], "out", outPath, "bytes", len(out))
			return nil
		},
	}
	cmd.Flags().StringP("data", "d", "", "JSON or YAML file holding the render data (\"-\" reads JSON from stdin)")
	cmd.Flags().StringP("out", "o", "", "Write the output to this file instead of stdout")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compile every template and report problems",
		Long:  `Compiles every template under the template directory, binds the result and prints resolution problems and block errors.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			names, err := a.engine.Templates()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range names {
				var problems []error
				p, err := a.engine.Compile(ctx, name)
				if err != nil {
					problems = append(problems, err)
				} else {
					problems = append(problems, p.Problems...)
					if _, err = tundra.Bind(p, nil); err != nil {
						problems = append(problems, err)
					}
				}

				if len(problems) == 0 {
					fmt.Fprintf(out, "%s    %s\n", color.GreenString("ok"), name)
					continue
				}
				failed++
				fmt.Fprintf(out, "%s  %s\n", color.RedString("FAIL"), name)
				for _, problem := range problems {
					fmt.Fprintf(out, "      %v\n", problem)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d templates have problems", failed, len(names))
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tundra",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tundra version %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the template preview server",
		Long:  `Starts an HTTP server exposing a JSON render API, template previews and Prometheus metrics.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			a, err := setupApp(cmd, reg)
			if err != nil {
				return err
			}
			defer a.close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.config.Server.Addr = addr
			}

			server := NewServer(a.config, a.logger, a.engine, reg)
			httpServer := &http.Server{
				Addr:              a.config.Server.Addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				a.logger.Info("Starting preview server", "address", httpServer.Addr, "templates", a.config.Engine.BaseDir)
				serverErrors <- httpServer.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(shutdown)

			select {
			case err = <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("preview server failed: %w", err)
			case sig := <-shutdown:
				a.logger.Info("OS signal received, stopping server.", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err = httpServer.Shutdown(ctx); err != nil {
				a.logger.Error("Preview server shutdown failed", "error", err)
				_ = httpServer.Close()
			}
			a.logger.Info("Tundra has shut down.")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "Listen address, overrides server_config.addr")
	return cmd
}
