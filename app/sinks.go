package app

import (
	"context"

	"biastest/domain/toys"
	"biastest/ports"
)

// MultiSink checkpoints into every sink in order and stops at the first
// failure.
type MultiSink []ports.ResultSink

var _ ports.ResultSink = MultiSink(nil)

func (m MultiSink) Checkpoint(ctx context.Context, rec *toys.RunRecord) error {
	for _, s := range m {
		if err := s.Checkpoint(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
