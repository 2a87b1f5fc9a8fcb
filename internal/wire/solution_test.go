package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSolutionFields() []string {
	return []string{
		"0000abcdef0000abcdef0000abcdef0000abcdef0000abcdef0000abcdef0000", // block_hash
		"1520000000",     // block_time
		"1519999000",     // prev_block_time
		"23120",          // prev_height
		"0000aaaabbbbccccddddeeeeffff0000aaaabbbbccccddddeeeeffff00001111", // bible_hash
		"8e40efa0-1b96-4f66-a6c9-f09b6dda1bcd",                             // miner_id
		"d2b19bd8-5166-44fa-b090-e1db2b7da3a8",                             // work_id
		"3",            // thread_id
		"150000",       // thread_hash_counter
		"151000000000", // thread_start
		"450000",       // hash_counter
		"151000000000", // timer_start
		"151000450000", // timer_end
		"7312",         // nonce
		"00ff00ff",     // block_hex
		"01aa01aa",     // transaction_hex
	}
}

func TestParseSolution(t *testing.T) {
	raw := strings.Join(sampleSolutionFields(), ",")

	sol, err := ParseSolution(raw)
	require.NoError(t, err)

	assert.Equal(t, "0000abcdef0000abcdef0000abcdef0000abcdef0000abcdef0000abcdef0000", sol.BlockHash)
	assert.Equal(t, "23120", sol.PrevHeight)
	assert.Equal(t, "8e40efa0-1b96-4f66-a6c9-f09b6dda1bcd", sol.MinerID)
	assert.Equal(t, "d2b19bd8-5166-44fa-b090-e1db2b7da3a8", sol.WorkID)
	assert.Equal(t, "7312", sol.Nonce)
	assert.Equal(t, "01aa01aa", sol.TransactionHex)
}

func TestParseSolutionRoundTrip(t *testing.T) {
	raw := strings.Join(sampleSolutionFields(), ",")

	sol, err := ParseSolution(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, sol.String())
}

func TestParseSolutionMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"too few fields", "a,b,c"},
		{"fifteen fields", strings.Join(sampleSolutionFields()[:15], ",")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSolution(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedSolution)
		})
	}
}

func TestSolutionLenientNumbers(t *testing.T) {
	fields := sampleSolutionFields()
	fields[8] = "not-a-number"  // thread_hash_counter
	fields[10] = ""             // hash_counter
	fields[11] = "151000000000" // timer_start
	fields[12] = "bogus"        // timer_end

	sol, err := ParseSolution(strings.Join(fields, ","))
	require.NoError(t, err)

	assert.Equal(t, int64(0), sol.ThreadHashCounterValue())
	assert.Equal(t, int64(0), sol.HashCounterValue())
	assert.Equal(t, int64(151000000000), sol.TimerStartValue())
	assert.Equal(t, int64(0), sol.TimerEndValue())
}

func TestSolutionHPS(t *testing.T) {
	tests := []struct {
		name        string
		hashCounter string
		timerStart  string
		timerEnd    string
		want        int64
	}{
		{"steady window", "450000", "151000000000", "151000450000", 1000},
		{"integer division", "1000", "0", "3000", 333},
		{"empty window", "450000", "151000000000", "151000000000", 0},
		{"backwards window", "450000", "151000450000", "151000000000", 0},
		{"garbage counter", "junk", "0", "1000", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := sampleSolutionFields()
			fields[10] = tt.hashCounter
			fields[11] = tt.timerStart
			fields[12] = tt.timerEnd

			sol, err := ParseSolution(strings.Join(fields, ","))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sol.HPS())
		})
	}
}
