package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hutchd/hutch/pkg/dns"
	"github.com/hutchd/hutch/pkg/metrics"
)

var dnsCmd = &cobra.Command{
	Use:   "dns",
	Short: "Manage the embedded DNS server",
}

var dnsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve DNS for resolvable networks",
	Long: `Run the embedded DNS server. Service names on resolvable networks
answer with the address of their newest instance, instance names like
'db-1.hutch' address one instance, and everything else is forwarded
upstream.

A metrics endpoint with /metrics, /health, and /ready runs alongside on
--metrics-addr.`,
	RunE: runDNSServe,
}

func init() {
	dnsServeCmd.Flags().String("listen", dns.DefaultListenAddr, "Address the DNS server listens on")
	dnsServeCmd.Flags().String("domain", dns.DefaultDomain, "Search domain service names resolve under")
	dnsServeCmd.Flags().StringSlice("upstream", []string{dns.DefaultUpstream}, "Upstream DNS server for external names (repeatable)")

	dnsCmd.AddCommand(dnsServeCmd)
	rootCmd.AddCommand(dnsCmd)
}

func runDNSServe(cmd *cobra.Command, args []string) error {
	listenAddr, _ := cmd.Flags().GetString("listen")
	domain, _ := cmd.Flags().GetString("domain")
	upstream, _ := cmd.Flags().GetStringSlice("upstream")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Println("Starting Hutch DNS...")
	fmt.Printf("  Listen Address: %s\n", listenAddr)
	fmt.Printf("  Domain: %s\n", domain)
	fmt.Printf("  Metrics Address: %s\n", metricsAddr)
	fmt.Println()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", true, "state store open")
	metrics.RegisterComponent("dns", false, "starting")

	collector := metrics.NewCollector(rt.orch, rt.layers)
	collector.Start()
	defer collector.Stop()

	server := dns.NewServer(rt.registry, &dns.Config{
		ListenAddr: listenAddr,
		Domain:     domain,
		Upstream:   upstream,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("DNS server error: %v", err)
		}
		metrics.UpdateComponent("dns", true, "serving")
		fmt.Println("✓ DNS server started")
		<-ctx.Done()
		return server.Stop()
	})
	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		fmt.Println("✓ Metrics server started")
		select {
		case err := <-errCh:
			return fmt.Errorf("metrics server error: %v", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	})

	fmt.Println()
	fmt.Println("Server is running. Press Ctrl+C to stop.")

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("\n✓ Shutdown complete")
	return nil
}
