package engine

import (
	"log"
	"time"

	"github.com/jhatier/mnemo/internal/store"
)

// DecayFunc maps a segment's current mnemonic weight and age in days to its
// new weight. Implementations must never return a larger weight.
type DecayFunc func(weight, ageDays float64) float64

// LinearDecay returns the default decay function: the target weight falls
// linearly from 1.0 by ratePerDay per day of age, floored, and a segment's
// weight drops to the target once its age catches up. Re-running at the
// same age is a no-op, so the daily timer never compounds.
func LinearDecay(ratePerDay, floor float64) DecayFunc {
	return func(weight, ageDays float64) float64 {
		target := 1.0 - ratePerDay*ageDays
		if target < floor {
			target = floor
		}
		if target > weight {
			target = weight
		}
		return target
	}
}

// DecayMnemonicWeights applies the decay function to every segment and
// returns the number of segments whose weight changed. Weights only ever
// decrease through decay.
func (e *Engine) DecayMnemonicWeights(fn DecayFunc) (int, error) {
	if fn == nil {
		fn = LinearDecay(e.Cfg.Decay.RatePerDay, e.Cfg.Decay.Floor)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	segs, err := e.DB.FilterSegments(store.SegmentFilters{}, 1<<30)
	if err != nil {
		return 0, err
	}

	nowEpoch := e.now().Unix()
	updated := 0
	for i := range segs {
		seg := &segs[i]
		ageDays := float64(nowEpoch-seg.TimestampEpoch) / 86400.0
		if ageDays <= 0 {
			continue
		}
		newWeight := fn(seg.MnemonicWeight, ageDays)
		if newWeight >= seg.MnemonicWeight {
			continue
		}
		if err := e.DB.SetMnemonicWeight(seg.ID, newWeight); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// StartDecayTimer runs decay once at startup and then on the configured
// interval until Stop is called.
func (e *Engine) StartDecayTimer() {
	run := func() {
		if updated, err := e.DecayMnemonicWeights(nil); err != nil {
			log.Printf("decay error: %v", err)
		} else if updated > 0 {
			log.Printf("decay: updated %d segments", updated)
		}
	}
	run()

	interval := time.Duration(e.Cfg.Decay.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}
