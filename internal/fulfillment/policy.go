package fulfillment

// CompletionPolicy decides which receipt outcomes allow an assignment to
// count as processed when completing an order.
type CompletionPolicy string

const (
	// CompletionAnyTerminal accepts any concluded verification, mismatches
	// included. This mirrors the long-standing behaviour of the workflow.
	CompletionAnyTerminal CompletionPolicy = "ANY_TERMINAL"
	// CompletionCleanOnly accepts only clean verifications; a mismatch
	// routes the order to a dispute ticket instead of completion.
	CompletionCleanOnly CompletionPolicy = "CLEAN_ONLY"
)

// IsValid reports whether the policy is known.
func (p CompletionPolicy) IsValid() bool {
	return p == CompletionAnyTerminal || p == CompletionCleanOnly
}

// Satisfied reports whether an assignment with the given parent-receipt
// statuses counts as processed.
func (p CompletionPolicy) Satisfied(statuses []GRNStatus) bool {
	for _, s := range statuses {
		switch p {
		case CompletionCleanOnly:
			if s == GRNStatusVerifiedOK {
				return true
			}
		default:
			if s.Terminal() {
				return true
			}
		}
	}
	return false
}

// Disputed reports whether the statuses contain a mismatch the strict policy
// must escalate.
func (p CompletionPolicy) Disputed(statuses []GRNStatus) bool {
	if p != CompletionCleanOnly {
		return false
	}
	for _, s := range statuses {
		if s == GRNStatusVerifiedMismatch {
			return true
		}
	}
	return false
}

// DeliveryVerification is the derived judgement of whether goods for a
// purchase order have been confirmed received.
type DeliveryVerification string

const (
	DeliveryYes     DeliveryVerification = "Yes"
	DeliveryNo      DeliveryVerification = "No"
	DeliveryPartial DeliveryVerification = "Partial"
)

// DeliveryPolicy folds the receipt statuses reachable from a purchase order
// into one DeliveryVerification.
type DeliveryPolicy string

const (
	// DeliveryAnyLine marks the whole purchase order delivered as soon as
	// any one receipt verifies clean, even with sibling lines unverified.
	// This reproduces observed production behaviour; see DESIGN.md before
	// relying on it.
	DeliveryAnyLine DeliveryPolicy = "ANY_LINE"
	// DeliveryAllLines requires every receipt to verify clean.
	DeliveryAllLines DeliveryPolicy = "ALL_LINES"
)

// IsValid reports whether the policy is known.
func (p DeliveryPolicy) IsValid() bool {
	return p == DeliveryAnyLine || p == DeliveryAllLines
}

// Derive folds receipt statuses into a delivery verification.
func (p DeliveryPolicy) Derive(statuses []GRNStatus) DeliveryVerification {
	if p == DeliveryAllLines {
		return deriveAllLines(statuses)
	}
	return deriveAnyLine(statuses)
}

func deriveAnyLine(statuses []GRNStatus) DeliveryVerification {
	partial := false
	for _, s := range statuses {
		switch s {
		case GRNStatusVerifiedOK:
			return DeliveryYes
		case GRNStatusVerifiedMismatch, GRNStatusPartiallyVerified:
			partial = true
		}
	}
	if partial {
		return DeliveryPartial
	}
	return DeliveryNo
}

func deriveAllLines(statuses []GRNStatus) DeliveryVerification {
	if len(statuses) == 0 {
		return DeliveryNo
	}
	allOK := true
	any := false
	for _, s := range statuses {
		switch s {
		case GRNStatusVerifiedOK:
			any = true
		case GRNStatusVerifiedMismatch, GRNStatusPartiallyVerified:
			any = true
			allOK = false
		default:
			allOK = false
		}
	}
	if allOK {
		return DeliveryYes
	}
	if any {
		return DeliveryPartial
	}
	return DeliveryNo
}
