package biblepay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAddressFormat(t *testing.T) {
	valid := "B" + strings.Repeat("a1B2c3D4e", 3) + "f5165x"
	if len(valid) != 34 {
		t.Fatalf("test fixture has wrong length: %d", len(valid))
	}

	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"mainnet prefix", valid, true},
		{"testnet prefix", "y" + valid[1:], true},
		{"too short", valid[:33], false},
		{"too long", valid + "a", false},
		{"empty", "", false},
		{"wrong prefix", "X" + valid[1:], false},
		{"lowercase b prefix", "b" + valid[1:], false},
		{"embedded space", valid[:10] + " " + valid[11:], false},
		{"embedded punctuation", valid[:10] + "-" + valid[11:], false},
		{"embedded non-ascii", valid[:10] + "é" + valid[11:], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidAddressFormat(tt.address))
		})
	}
}
