package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkerID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    WorkerID
		wantErr bool
	}{
		{
			name: "address only",
			raw:  "BDev1PoolTestAddressXXXXXXXXXXAAAA",
			want: WorkerID{Address: "BDev1PoolTestAddressXXXXXXXXXXAAAA", Worker: "Default"},
		},
		{
			name: "address and worker",
			raw:  "BDev1PoolTestAddressXXXXXXXXXXAAAA/rig1",
			want: WorkerID{Address: "BDev1PoolTestAddressXXXXXXXXXXAAAA", Worker: "rig1"},
		},
		{
			name: "empty worker falls back to default",
			raw:  "BDev1PoolTestAddressXXXXXXXXXXAAAA/",
			want: WorkerID{Address: "BDev1PoolTestAddressXXXXXXXXXXAAAA", Worker: "Default"},
		},
		{
			name: "address worker and email",
			raw:  "BDev1PoolTestAddressXXXXXXXXXXAAAA/rig1/ops@example.com",
			want: WorkerID{Address: "BDev1PoolTestAddressXXXXXXXXXXAAAA", Worker: "rig1", Email: "ops@example.com"},
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "empty address with worker",
			raw:     "/rig1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWorkerID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWorkerID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestWorkerIDString(t *testing.T) {
	id := &WorkerID{Address: "BAddr", Worker: "rig1"}
	assert.Equal(t, "BAddr/rig1", id.String())

	id.Email = "ops@example.com"
	assert.Equal(t, "BAddr/rig1/ops@example.com", id.String())
}
