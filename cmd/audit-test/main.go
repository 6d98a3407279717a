// Smoke binary for the audit publisher: emits a mix of quota events through
// the async path, floods the buffer to exercise the drop behavior, and serves
// the Prometheus metrics so the drop counter can be inspected live.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chalk/internal/audit"
	"chalk/internal/usage/models"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(
		store,
		audit.WithAsyncBuffer(10), // Small buffer to test backpressure
		audit.WithPublisherLogger(logger),
	)

	// Start metrics server in background
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		fmt.Println("Metrics available at http://localhost:9090/metrics")
		if err := http.ListenAndServe(":9090", nil); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	ctx := context.Background()

	fmt.Println("\n=== Audit Publisher Test ===")

	// Test 1: Emit a realistic mix of events
	fmt.Println("1. Emitting 5 events (should all be persisted)...")
	userID := int64(42)
	events := []audit.Event{
		{Type: audit.EventUsageRecorded, UserID: &userID, Action: string(models.ActionGeneration), Tier: string(models.TierFree), Allowed: true},
		{Type: audit.EventUsageRecorded, IPAddress: "203.0.113.7", Action: string(models.ActionDownload), Tier: string(models.TierFree), Allowed: true},
		{Type: audit.EventUsageDenied, UserID: &userID, Action: string(models.ActionGeneration), Tier: string(models.TierFree), Reason: "monthly generation cap reached"},
		{Type: audit.EventTierUpdated, UserID: &userID, Tier: string(models.TierPremium), Allowed: true, Reason: "admin upgrade"},
		{Type: audit.EventUsageReset, IPAddress: "203.0.113.7", Allowed: true, Reason: "admin reset"},
	}
	for i, event := range events {
		event.RequestID = uuid.New().String()
		if err := publisher.Emit(ctx, event); err != nil {
			fmt.Printf("   Event %d failed: %v\n", i+1, err)
		} else {
			fmt.Printf("   Event %d emitted (%s, identity=%s)\n", i+1, event.Type, event.IdentityKey())
		}
		time.Sleep(50 * time.Millisecond) // Small delay to let worker process
	}

	// Give worker time to process
	time.Sleep(200 * time.Millisecond)

	// Test 2: Flood the buffer to trigger drops. Emit never errors on a full
	// buffer; drops show up as missing store entries and on the drop counter.
	fmt.Println("\n2. Flooding buffer with 200 events (buffer size is 10)...")
	before, _ := store.ListRecent(ctx, 0)
	for i := 0; i < 200; i++ {
		event := audit.Event{
			Type:      audit.EventUsageRecorded,
			IPAddress: fmt.Sprintf("198.51.100.%d", i%256),
			Action:    string(models.ActionGeneration),
			Tier:      string(models.TierFree),
			Allowed:   true,
			RequestID: uuid.New().String(),
		}
		_ = publisher.Emit(ctx, event)
	}

	// Give worker time to drain what made it into the buffer
	time.Sleep(500 * time.Millisecond)

	after, _ := store.ListRecent(ctx, 0)
	persisted := len(after) - len(before)
	fmt.Printf("   Emitted 200 events, %d persisted, %d dropped (see chalk_audit_events_dropped_total)\n",
		persisted, 200-persisted)

	// Test 3: Check store contents
	fmt.Println("\n3. Checking store contents...")
	allEvents, _ := store.ListRecent(ctx, 0)
	fmt.Printf("   Total events in store: %d\n", len(allEvents))
	recent, _ := publisher.List(ctx, 3)
	for _, e := range recent {
		fmt.Printf("   %s %s identity=%s allowed=%v\n", e.OccurredAt.Format(time.RFC3339), e.Type, e.IdentityKey(), e.Allowed)
	}

	// Print metrics summary
	fmt.Println("\n=== Metrics Summary ===")
	fmt.Println("View full metrics at: http://localhost:9090/metrics")
	fmt.Println("Filter with: curl -s http://localhost:9090/metrics | grep chalk_audit")
	fmt.Println("\nPress Ctrl+C to exit...")

	// Keep server running
	select {}
}
