package store

import (
	"context"
	"testing"
	"time"
)

func TestMapperSaveAndLookupBothDirections(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Mapper.Save(ctx, 1001, 555, "BTC"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, found, err := s.Mapper.LookupFollower(ctx, 1001)
	if err != nil || !found {
		t.Fatalf("LookupFollower: found=%v err=%v", found, err)
	}
	if rec.FollowerID != 555 || rec.Coin != "BTC" {
		t.Errorf("mapping = %+v", rec)
	}

	oid, found, err := s.Mapper.LookupMaster(ctx, 555)
	if err != nil || !found {
		t.Fatalf("LookupMaster: found=%v err=%v", found, err)
	}
	if oid != 1001 {
		t.Errorf("master oid = %d, want 1001", oid)
	}

	ts, found, err := s.Mapper.TimestampOf(ctx, 1001)
	if err != nil || !found {
		t.Fatalf("TimestampOf: found=%v err=%v", found, err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("timestamp too old: %v", ts)
	}
}

func TestMapperLookupMissing(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.Mapper.LookupFollower(ctx, 42); err != nil || found {
		t.Errorf("LookupFollower(42) = found=%v err=%v, want absent", found, err)
	}
	if _, found, err := s.Mapper.LookupMaster(ctx, 42); err != nil || found {
		t.Errorf("LookupMaster(42) = found=%v err=%v, want absent", found, err)
	}
	if _, found, err := s.Mapper.TimestampOf(ctx, 42); err != nil || found {
		t.Errorf("TimestampOf(42) = found=%v err=%v, want absent", found, err)
	}
}

func TestMapperDeleteRemovesBothDirections(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Mapper.Save(ctx, 1001, 555, "BTC"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Mapper.Delete(ctx, 1001); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, found, _ := s.Mapper.LookupFollower(ctx, 1001); found {
		t.Error("forward mapping survived delete")
	}
	if _, found, _ := s.Mapper.LookupMaster(ctx, 555); found {
		t.Error("inverse mapping survived delete")
	}
	if _, found, _ := s.Mapper.TimestampOf(ctx, 1001); found {
		t.Error("timestamp survived delete")
	}

	// Deleting again is a no-op, not an error.
	if err := s.Mapper.Delete(ctx, 1001); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMapperSaveOverwrites(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Mapper.Save(ctx, 1001, 555, "BTC")
	_ = s.Mapper.Save(ctx, 1001, 777, "BTC") // cancel-replace remaps the oid

	rec, _, err := s.Mapper.LookupFollower(ctx, 1001)
	if err != nil {
		t.Fatalf("LookupFollower: %v", err)
	}
	if rec.FollowerID != 777 {
		t.Errorf("follower id = %d, want 777 (latest save)", rec.FollowerID)
	}
}

func TestMapperExpiresAfterRetention(t *testing.T) {
	t.Parallel()
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Mapper.Save(ctx, 1001, 555, "BTC"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(mappingTTL + time.Hour)

	if _, found, _ := s.Mapper.LookupFollower(ctx, 1001); found {
		t.Error("mapping survived past retention window")
	}
	if _, found, _ := s.Mapper.LookupMaster(ctx, 555); found {
		t.Error("inverse mapping survived past retention window")
	}
}

func TestMapperActiveOids(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Mapper.Save(ctx, 1, 11, "BTC")
	_ = s.Mapper.Save(ctx, 2, 22, "ETH")
	_ = s.Mapper.Save(ctx, 3, 33, "BTC")

	oids, err := s.Mapper.ActiveOids(ctx)
	if err != nil {
		t.Fatalf("ActiveOids: %v", err)
	}
	if len(oids) != 3 {
		t.Fatalf("ActiveOids returned %d oids, want 3", len(oids))
	}

	seen := map[int64]bool{}
	for _, oid := range oids {
		seen[oid] = true
	}
	for _, want := range []int64{1, 2, 3} {
		if !seen[want] {
			t.Errorf("ActiveOids missing oid %d", want)
		}
	}
}
