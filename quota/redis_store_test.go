package quota

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/remibonds525-star/loyalty-engine/config"
	redisdb "github.com/remibonds525-star/loyalty-engine/db/redis"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	db, err := redisdb.New(config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRedisStore(db), mr
}

// The play mark and the counter increment commit together: after one
// Consume both exist, and a replay of the same play id changes nothing.
// A mark without its increment would silently re-grant the free play.
func TestRedisConsumeCommitsMarkAndCountTogether(t *testing.T) {
	store, mr := newRedisTestStore(t)
	ctx := context.Background()

	if err := store.Consume(ctx, "u1", GameSaw, "2026-08-31", "play-1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	if !mr.Exists(playMarkKey("play-1")) {
		t.Error("expected play mark to exist after consume")
	}
	rec, err := store.Get(ctx, "u1", GameSaw)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PlaysUsed != 1 || rec.LastPlayDate != "2026-08-31" {
		t.Errorf("expected 1 play used on 2026-08-31, got %d on %q", rec.PlaysUsed, rec.LastPlayDate)
	}

	// replayed play id is a no-op
	if err := store.Consume(ctx, "u1", GameSaw, "2026-08-31", "play-1"); err != nil {
		t.Fatalf("Consume replay: %v", err)
	}
	rec, err = store.Get(ctx, "u1", GameSaw)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PlaysUsed != 1 {
		t.Errorf("expected replay to leave count at 1, got %d", rec.PlaysUsed)
	}
}

func TestRedisConsumeConcurrentDistinctPlays(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	const plays = 20
	var wg sync.WaitGroup
	for i := 0; i < plays; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			playID := fmt.Sprintf("play-%d", i)
			if err := store.Consume(ctx, "u1", GameMines, "2026-08-31", playID); err != nil {
				t.Errorf("Consume %s: %v", playID, err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := store.Get(ctx, "u1", GameMines)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PlaysUsed != plays {
		t.Errorf("expected exactly %d plays counted, got %d", plays, rec.PlaysUsed)
	}
}

func TestRedisConsumeNewDayStartsFresh(t *testing.T) {
	store, _ := newRedisTestStore(t)
	ctx := context.Background()

	if err := store.Consume(ctx, "u1", GameSaw, "2026-08-30", "play-a"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := store.Consume(ctx, "u1", GameSaw, "2026-08-31", "play-b"); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	rec, err := store.Get(ctx, "u1", GameSaw)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PlaysUsed != 1 || rec.LastPlayDate != "2026-08-31" {
		t.Errorf("expected fresh day with 1 play, got %d on %q", rec.PlaysUsed, rec.LastPlayDate)
	}
}
