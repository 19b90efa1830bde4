package natsbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"peakrace/internal/wire"
)

// PropertyStore keeps replicated properties in a JetStream key/value bucket. The bucket keeps one
// revision per key, so the last write wins.
type PropertyStore struct {
	kv     jetstream.KeyValue
	logger runtime.Logger
}

// NewPropertyStore opens (or creates) the bucket for matchID.
func NewPropertyStore(ctx context.Context, nc *nats.Conn, matchID string, logger runtime.Logger) (*PropertyStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName(matchID),
		Description: "peakrace replicated match properties",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", BucketName(matchID), err)
	}
	return &PropertyStore{kv: kv, logger: logger}, nil
}

// Put writes every property. A failed key does not stop the others.
func (s *PropertyStore) Put(ctx context.Context, props []wire.Property) error {
	var errs []error
	for _, p := range props {
		if _, err := s.kv.Put(ctx, p.Key, p.Value); err != nil {
			s.logger.Warn("PropertyStore: put %s failed: %v", p.Key, err)
			errs = append(errs, fmt.Errorf("put %s: %w", p.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Watch delivers current values then every update until ctx ends.
func (s *PropertyStore) Watch(ctx context.Context, fn func(wire.Property)) error {
	w, err := s.kv.WatchAll(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-w.Updates():
			if !ok {
				return nil
			}
			// nil marks the end of the initial values
			if entry == nil {
				s.logger.Debug("PropertyStore: initial values received")
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			fn(wire.Property{Key: entry.Key(), Value: entry.Value()})
		}
	}
}
