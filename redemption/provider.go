package redemption

import "github.com/warp/recognition-engine/engine"

// initialStatus is the per-provider fulfillment entry point. External gift
// cards wait for a code from the vendor; everything else waits for someone
// to ship it.
var initialStatus = map[engine.Provider]engine.RedemptionStatus{
	engine.ProviderInternal:         engine.RedemptionPendingFulfillment,
	engine.ProviderManualVendor:     engine.RedemptionPendingFulfillment,
	engine.ProviderExternalGiftCard: engine.RedemptionPendingCode,
}

// InitialStatus returns the status a fresh redemption starts in. Unknown
// providers are handled like internal ones.
func InitialStatus(p engine.Provider) engine.RedemptionStatus {
	if s, ok := initialStatus[p]; ok {
		return s
	}
	return engine.RedemptionPendingFulfillment
}

// transitions lists the admin fulfillment moves. Delivered and cancelled
// are terminal.
var transitions = map[engine.RedemptionStatus][]engine.RedemptionStatus{
	engine.RedemptionPendingFulfillment: {engine.RedemptionFulfilled, engine.RedemptionCancelled},
	engine.RedemptionPendingCode:        {engine.RedemptionFulfilled, engine.RedemptionCancelled},
	engine.RedemptionFulfilled:          {engine.RedemptionDelivered},
}

func canTransition(from, to engine.RedemptionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func parseStatus(s string) (engine.RedemptionStatus, bool) {
	switch st := engine.RedemptionStatus(s); st {
	case engine.RedemptionPendingFulfillment, engine.RedemptionPendingCode,
		engine.RedemptionFulfilled, engine.RedemptionDelivered, engine.RedemptionCancelled:
		return st, true
	}
	return "", false
}
