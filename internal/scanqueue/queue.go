package scanqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/jetsetgo/gopass-terminal/internal/localstore"
)

// StorageKey is the local store key holding the JSON-encoded queue
const StorageKey = "pendingScans"

// PendingScan is a scan attempt that has not received a server verdict
type PendingScan struct {
	Token      string    `json:"token"`
	FlightID   string    `json:"flight_id"`
	CapturedAt time.Time `json:"timestamp"`
}

func loadQueue(ctx context.Context, store localstore.Store) ([]PendingScan, error) {
	raw, err := store.Get(ctx, StorageKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanqueue: loading queue: %w", err)
	}

	var scans []PendingScan
	if err := json.Unmarshal(raw, &scans); err != nil {
		return nil, fmt.Errorf("scanqueue: decoding queue: %w", err)
	}
	return scans, nil
}

func saveQueue(ctx context.Context, store localstore.Store, scans []PendingScan) error {
	if scans == nil {
		scans = []PendingScan{}
	}
	raw, err := json.Marshal(scans)
	if err != nil {
		return fmt.Errorf("scanqueue: encoding queue: %w", err)
	}
	if err := store.Put(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("scanqueue: persisting queue: %w", err)
	}
	return nil
}
