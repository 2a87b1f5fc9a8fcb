// Package solution validates and persists miner submissions. Every
// submission runs through an ordered pipeline of checks against the work
// ticket, the daemon's recomputed proof, the coinbase recipient and the
// chain's current acceptance window.
package solution

// RejectReason identifies why a submission was turned away. The set is
// closed: rejected rows carry one of these values and nothing else, so
// fraud analysis can group on them.
type RejectReason string

const (
	// ReasonUnknownWork means the referenced work ticket does not exist
	// on this network.
	ReasonUnknownWork RejectReason = "unknown_work"

	// ReasonTargetExceeded means the proof hash is not below the ticket's
	// hash target.
	ReasonTargetExceeded RejectReason = "target_exceeded"

	// ReasonProofMismatch means the daemon's recomputed bible hash does
	// not match the submitted one.
	ReasonProofMismatch RejectReason = "proof_mismatch"

	// ReasonDecodeFailure means the submitted block/transaction hex could
	// not be decoded into a coinbase.
	ReasonDecodeFailure RejectReason = "decode_failure"

	// ReasonRecipientMismatch means the coinbase pays someone other than
	// the pool.
	ReasonRecipientMismatch RejectReason = "recipient_mismatch"

	// ReasonExternalOutdated means the daemon is too old to report
	// identity signature flags.
	ReasonExternalOutdated RejectReason = "external_outdated"

	// ReasonIdentityInvalid means the embedded identity signature failed
	// verification.
	ReasonIdentityInvalid RejectReason = "identity_invalid"

	// ReasonIdentityIllegal means the embedded identity is not allowed to
	// mine on this pool.
	ReasonIdentityIllegal RejectReason = "identity_illegal"

	// ReasonReplaySuspected means the nonce is above the chain's current
	// acceptance ceiling.
	ReasonReplaySuspected RejectReason = "replay_suspected"

	// ReasonStaleHeight means the submission was mined against a height
	// that is no longer the chain tip.
	ReasonStaleHeight RejectReason = "stale_height"

	// ReasonDuplicateProof means the bible hash is already known to the
	// pool.
	ReasonDuplicateProof RejectReason = "duplicate_proof"
)

// String returns the stored form of the reason.
func (r RejectReason) String() string {
	return string(r)
}
