package solution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcceptableHash(t *testing.T) {
	target := "0000011110000000" + strings.Repeat("0", 48)

	tests := []struct {
		name      string
		bibleHash string
		want      bool
	}{
		{
			name:      "hash below target",
			bibleHash: "0000000000000001" + strings.Repeat("0", 48),
			want:      true,
		},
		{
			name:      "hash just above target",
			bibleHash: "000001111" + strings.Repeat("f", 55),
			want:      false,
		},
		{
			name:      "hash equal to target",
			bibleHash: target,
			want:      false,
		},
		{
			name:      "hash above target",
			bibleHash: "0000100000000000" + strings.Repeat("0", 48),
			want:      false,
		},
		{
			name:      "zero hash",
			bibleHash: strings.Repeat("0", 64),
			want:      true,
		},
		{
			name:      "garbage hash",
			bibleHash: "not-a-hash",
			want:      false,
		},
		{
			name:      "empty hash",
			bibleHash: "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AcceptableHash(tt.bibleHash, target))
		})
	}
}

func TestAcceptableHashGarbageTarget(t *testing.T) {
	assert.False(t, AcceptableHash(strings.Repeat("0", 64), "not-a-target"))
	assert.False(t, AcceptableHash(strings.Repeat("0", 64), ""))
}
