package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "vehicle-auction/internal/biddingService"
)

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	ctx := context.Background()
	_, svc, auctions := setupRepo(b.N, bidding.DefaultPolicy())

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buyer := newBuyer(fmt.Sprintf("buyer_%d", i))
		if _, err := svc.PlaceBid(ctx, auctions[i].ID, buyer, amount(int64(100+rand.Intn(100)))); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	ctx := context.Background()
	_, svc, auctions := setupRepo(1, bidding.DefaultPolicy())
	auctionID := auctions[0].ID

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 100

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			buyer := newBuyer(fmt.Sprintf("buyer_parallel_%d", rnd.Int()))
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			// strict ordering rejects bids overtaken by a concurrent writer
			_, _ = svc.PlaceBid(ctx, auctionID, buyer, amount(nextBid))
		}
	})
}

// Benchmark 3: GetWinningBid - Single - Threaded (Low Contention)
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	ctx := context.Background()
	_, svc, auctions := setupRepo(b.N, bidding.DefaultPolicy())

	for i, a := range auctions {
		for j := 0; j < 10; j++ {
			buyer := newBuyer(fmt.Sprintf("buyer_%d_%d", i, j))
			_, _ = svc.PlaceBid(ctx, a.ID, buyer, amount(int64(100+j*10)))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.GetWinningBid(ctx, auctions[i].ID); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// Benchmark 4: GetWinningBid - Concurrent (High Contention)
func Benchmark_GetWinningBid_ConcurrentSharedAuction(b *testing.B) {
	ctx := context.Background()
	_, svc, auctions := setupRepo(1, bidding.DefaultPolicy())
	auctionID := auctions[0].ID

	for j := 0; j < 100; j++ {
		buyer := newBuyer(fmt.Sprintf("buyer_%d", j))
		_, _ = svc.PlaceBid(ctx, auctionID, buyer, amount(int64(100+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetWinningBid(ctx, auctionID); err != nil {
				b.Errorf("failed to get winning bid: %v", err)
				return
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	ctx := context.Background()
	_, svc, auctions := setupRepo(1, bidding.Policy{StrictOrdering: false, Quota: bidding.DefaultQuota})
	auctionID := auctions[0].ID

	for j := 0; j < 50; j++ {
		buyer := newBuyer(fmt.Sprintf("buyer_seed_%d", j))
		_, _ = svc.PlaceBid(ctx, auctionID, buyer, amount(int64(100+j*2)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				buyer := newBuyer(fmt.Sprintf("buyer_writer_%d", rnd.Int()))
				_, _ = svc.PlaceBid(ctx, auctionID, buyer, amount(int64(100+rnd.Intn(500))))
				continue
			}
			_, _ = svc.GetBidsForAuction(ctx, auctionID)
		}
	})
}
