package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bidding "vehicle-auction/internal/biddingService"
	"vehicle-auction/internal/biddingerrors"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumAuctions     int
	ReadRatio       int
	MaxBidIncrement int
	Strict          bool
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)))]
	p99 = latencies[int(0.99*float64(len(latencies)))]
	return
}

// Benchmark_Load_BiddingSystem runs multiple scenarios
func Benchmark_Load_BiddingSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{Name: "Low-Contention-WriteHeavy", NumAuctions: 200, ReadRatio: 0, MaxBidIncrement: 50, Strict: true},
		{Name: "High-Contention-WriteHeavy", NumAuctions: 10, ReadRatio: 0, MaxBidIncrement: 20, Strict: true},
		{Name: "Mixed-Workload", NumAuctions: 50, ReadRatio: 7, MaxBidIncrement: 30, Strict: true},
		{Name: "ReadHeavy", NumAuctions: 50, ReadRatio: 9, MaxBidIncrement: 20, Strict: true},
		{Name: "Permissive-SingleAuction", NumAuctions: 1, ReadRatio: 5, MaxBidIncrement: 10},
		{Name: "Peak-Burst", NumAuctions: 50, ReadRatio: 0, MaxBidIncrement: 20, Strict: true, Burst: true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	ctx := context.Background()
	_, svc, auctions := setupRepo(s.NumAuctions, bidding.Policy{StrictOrdering: s.Strict, Quota: bidding.DefaultQuota})

	var totalOps, successfulBids, failedBids, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			idx := rnd.Intn(s.NumAuctions)
			auctionID := auctions[idx].ID

			opStart := time.Now()
			if rnd.Intn(10) < s.ReadRatio {
				if _, err := svc.GetWinningBid(ctx, auctionID); err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
					b.Logf("ignored read error: %v", err)
				}
				atomic.AddInt64(&totalReads, 1)
			} else {
				buyer := newBuyer(fmt.Sprintf("buyer_%d", rnd.Int()))
				if _, err := svc.PlaceBid(ctx, auctionID, buyer, amount(int64(100+rnd.Intn(s.MaxBidIncrement)))); err != nil {
					atomic.AddInt64(&failedBids, 1)
				} else {
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&auctionSuccess[idx], 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := metrics.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Auctions: %d | Total Ops: %d | Success Bids: %d | Rejected Bids: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumAuctions, totalOps, successfulBids, failedBids, totalReads, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)
}

// TestLoad_StrictLedgerStaysMonotonic hammers one auction from many goroutines.
// Strict ordering never accepts the same amount twice and the quota holds per buyer.
func TestLoad_StrictLedgerStaysMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}

	ctx := context.Background()
	repo, svc, auctions := setupRepo(1, bidding.DefaultPolicy())
	auctionID := auctions[0].ID

	const workers, perWorker = 32, 25
	var accepted int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(w)))
			buyer := newBuyer(fmt.Sprintf("load_buyer_%d", w))
			for i := 0; i < perWorker; i++ {
				_, err := svc.PlaceBid(ctx, auctionID, buyer, amount(int64(100+rnd.Intn(10_000))))
				if err == nil {
					atomic.AddInt64(&accepted, 1)
				}
			}
		}(w)
	}
	wg.Wait()

	bids, err := repo.GetBidsByAuction(ctx, auctionID)
	require.NoError(t, err)
	require.Len(t, bids, int(accepted))
	require.LessOrEqual(t, len(bids), workers*bidding.DefaultQuota)

	seen := map[string]bool{}
	for _, b := range bids {
		key := b.Amount.String()
		require.False(t, seen[key], "amount %s accepted twice", key)
		seen[key] = true
	}

	perBuyer := map[string]int{}
	for _, b := range bids {
		perBuyer[b.BuyerID.String()]++
	}
	for buyer, n := range perBuyer {
		require.LessOrEqual(t, n, bidding.DefaultQuota, "buyer %s", buyer)
	}
}
