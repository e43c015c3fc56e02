// exchange runs the matching core: one Coordinator fronting a TCP
// order-entry server, a WebSocket trade feed, a JSON persistence sink, and a
// Prometheus metrics endpoint, all wired per SPEC_FULL.md §D.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fenrir/internal/coordinator"
	"fenrir/internal/engine"
	"fenrir/internal/index"
	"fenrir/internal/metrics"
	fenrirNet "fenrir/internal/net"
	"fenrir/internal/persistence"
	"fenrir/internal/publisher"
	"fenrir/internal/transport/ws"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"
)

const healthPollInterval = 2 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("exchange exited with error")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "exchange",
		Short: "Runs the matching core's order-entry, market-data, and persistence services.",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		tcpAddr     string
		tcpPort     int
		httpAddr    string
		logFilePath string
		symbolCfg   []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the exchange's order-entry, market-data, and metrics services.",
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)

			cfgFor, err := parseSymbolConfigs(symbolCfg)
			if err != nil {
				return err
			}

			logFile := os.Stdout
			if logFilePath != "" {
				f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("opening persistence log: %w", err)
				}
				defer f.Close()
				logFile = f
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			t, ctx := tomb.WithContext(ctx)

			idx := index.New(0)
			pub := publisher.New(0)
			sink := persistence.New(logFile, 0)
			t.Go(func() error { return sink.Run(t) })

			coord := coordinator.New(t, idx, pub, sink, cfgFor)

			tcpServer := fenrirNet.New(tcpAddr, tcpPort, coord)
			t.Go(func() error {
				tcpServer.Run(ctx)
				return nil
			})

			hub := ws.NewHub(pub)
			mux := http.NewServeMux()
			mux.Handle("/ws/trades", hub)
			mux.Handle("/metrics", promhttp.Handler())
			httpServer := &http.Server{Addr: httpAddr, Handler: mux}
			t.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			t.Go(func() error {
				<-t.Dying()
				return httpServer.Close()
			})

			t.Go(func() error {
				return pollHealth(t, sink, coord)
			})

			log.Info().Str("tcp", fmt.Sprintf("%s:%d", tcpAddr, tcpPort)).Str("http", httpAddr).Msg("exchange serving")

			<-ctx.Done()
			t.Kill(nil)
			return t.Wait()
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp-addr", "0.0.0.0", "address for the TCP order-entry listener")
	cmd.Flags().IntVar(&tcpPort, "tcp-port", 9001, "port for the TCP order-entry listener")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":9002", "address for the HTTP (WebSocket + metrics) listener")
	cmd.Flags().StringVar(&logFilePath, "persistence-log", "", "path to the newline-delimited JSON audit log (stdout if empty)")
	cmd.Flags().StringSliceVar(&symbolCfg, "symbol-config", nil, "per-symbol tick/lot overrides as SYMBOL:TICK:LOT, repeatable")

	return cmd
}

// pollHealth periodically refreshes the persistence_healthy and
// symbols_poisoned gauges from the sink and coordinator's live state, the
// health signal required by spec.md §7.
func pollHealth(t *tomb.Tomb, sink *persistence.Sink, coord *coordinator.Coordinator) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			if sink.Healthy() {
				metrics.PersistenceHealthy.Set(1)
			} else {
				metrics.PersistenceHealthy.Set(0)
			}
			metrics.SymbolsPoisoned.Set(float64(coord.PoisonedSymbols()))
		}
	}
}

// parseSymbolConfigs builds a coordinator.ConfigLookup from "SYMBOL:TICK:LOT"
// flag values, falling back to unrestricted tick/lot for any symbol not
// listed.
func parseSymbolConfigs(raw []string) (coordinator.ConfigLookup, error) {
	cfgs := make(map[string]engine.Config, len(raw))
	for _, entry := range raw {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid --symbol-config %q: want SYMBOL:TICK:LOT", entry)
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		tick, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid tick in %q: %w", entry, err)
		}
		lot, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid lot in %q: %w", entry, err)
		}
		cfgs[symbol] = engine.Config{Tick: tick, Lot: lot}
	}

	return func(symbol string) engine.Config {
		if cfg, ok := cfgs[symbol]; ok {
			return cfg
		}
		return engine.Config{}
	}, nil
}
