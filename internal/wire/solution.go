// Package wire implements the text formats exchanged with the BiblePay
// mining client: the comma separated solution string and the slash
// separated worker identifier. The client side of these formats lives in
// the miner's UpdatePoolProgress code path, so field order and lenient
// numeric parsing are part of the contract and must not change.
package wire

import (
	"strconv"
	"strings"

	"github.com/purepool/purepool/pkg/errors"
)

// solutionFieldCount is the number of comma separated fields in a
// solution string as produced by the mining client.
const solutionFieldCount = 16

// ErrMalformedSolution is returned when a solution string cannot be split
// into its expected fields.
var ErrMalformedSolution = errors.New(errors.ErrorTypeValidation, "parse_solution", "malformed solution string")

// SolutionString is a parsed miner solution submission. All fields are kept
// verbatim as submitted; numeric accessors parse leniently because the
// client is not trusted to send well formed numbers.
type SolutionString struct {
	BlockHash         string
	BlockTime         string
	PrevBlockTime     string
	PrevHeight        string
	BibleHash         string
	MinerID           string
	WorkID            string
	ThreadID          string
	ThreadHashCounter string
	ThreadStart       string
	HashCounter       string
	TimerStart        string
	TimerEnd          string
	Nonce             string
	BlockHex          string
	TransactionHex    string
}

// ParseSolution splits a raw solution string into its fields. Submissions
// with fewer than the expected number of fields are rejected; extra fields
// are ignored the same way the pool always has.
func ParseSolution(raw string) (*SolutionString, error) {
	fields := strings.Split(raw, ",")
	if len(fields) < solutionFieldCount {
		return nil, ErrMalformedSolution
	}

	return &SolutionString{
		BlockHash:         fields[0],
		BlockTime:         fields[1],
		PrevBlockTime:     fields[2],
		PrevHeight:        fields[3],
		BibleHash:         fields[4],
		MinerID:           fields[5],
		WorkID:            fields[6],
		ThreadID:          fields[7],
		ThreadHashCounter: fields[8],
		ThreadStart:       fields[9],
		HashCounter:       fields[10],
		TimerStart:        fields[11],
		TimerEnd:          fields[12],
		Nonce:             fields[13],
		BlockHex:          fields[14],
		TransactionHex:    fields[15],
	}, nil
}

// String re-assembles the solution into its wire form. Parsing and
// re-serializing a 16 field submission is lossless.
func (s *SolutionString) String() string {
	return strings.Join([]string{
		s.BlockHash,
		s.BlockTime,
		s.PrevBlockTime,
		s.PrevHeight,
		s.BibleHash,
		s.MinerID,
		s.WorkID,
		s.ThreadID,
		s.ThreadHashCounter,
		s.ThreadStart,
		s.HashCounter,
		s.TimerStart,
		s.TimerEnd,
		s.Nonce,
		s.BlockHex,
		s.TransactionHex,
	}, ",")
}

// lenientInt parses a client supplied integer, falling back to zero on
// garbage input.
func lenientInt(value string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// ThreadHashCounterValue returns the per-thread hash counter, or zero if
// the client sent a non-numeric value.
func (s *SolutionString) ThreadHashCounterValue() int64 {
	return lenientInt(s.ThreadHashCounter)
}

// ThreadStartValue returns the thread start timestamp in milliseconds.
func (s *SolutionString) ThreadStartValue() int64 {
	return lenientInt(s.ThreadStart)
}

// HashCounterValue returns the whole-client hash counter.
func (s *SolutionString) HashCounterValue() int64 {
	return lenientInt(s.HashCounter)
}

// TimerStartValue returns the miner start time in milliseconds.
func (s *SolutionString) TimerStartValue() int64 {
	return lenientInt(s.TimerStart)
}

// NonceValue returns the nonce the proof was computed with.
func (s *SolutionString) NonceValue() int64 {
	return lenientInt(s.Nonce)
}

// PrevHeightValue returns the chain height the client mined against.
func (s *SolutionString) PrevHeightValue() int64 {
	return lenientInt(s.PrevHeight)
}

// TimerEndValue returns the submission time in milliseconds.
func (s *SolutionString) TimerEndValue() int64 {
	return lenientInt(s.TimerEnd)
}

// HPS derives the client's reported hashes per second from the hash
// counter and the timer window. Returns zero when the window is empty or
// runs backwards.
func (s *SolutionString) HPS() int64 {
	elapsed := s.TimerEndValue() - s.TimerStartValue()
	if elapsed <= 0 {
		return 0
	}
	return 1000 * s.HashCounterValue() / elapsed
}
