package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairRow_SplitsEmbeddedTransmission(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		drive     *string
		trans     *string
		wantDrive *string
		wantTrans *string
	}{
		{
			name:      "quoted fragment",
			drive:     ptr(`AWD,"transmission":"8-Speed Automatic"`),
			wantDrive: ptr("AWD"),
			wantTrans: ptr("8-Speed Automatic"),
		},
		{
			name:      "escaped fragment",
			drive:     ptr(`FWD,\"transmission\":\"CVT\"`),
			wantDrive: ptr("FWD"),
			wantTrans: ptr("CVT"),
		},
		{
			name:      "colon fragment",
			drive:     ptr(`4WD, transmission: '6-Speed Manual'`),
			wantDrive: ptr("4WD"),
			wantTrans: ptr("6-Speed Manual"),
		},
		{
			name:      "unquoted fragment",
			drive:     ptr(`RWD, Transmission: 10-Speed Automatic`),
			wantDrive: ptr("RWD"),
			wantTrans: ptr("10-Speed Automatic"),
		},
		{
			name:      "unquoted fragment without comma",
			drive:     ptr(`AWD transmission:CVT`),
			wantDrive: ptr("AWD"),
			wantTrans: ptr("CVT"),
		},
		{
			name:      "quoted fragment without comma",
			drive:     ptr(`AWD "transmission":"8-Speed Automatic"`),
			wantDrive: ptr("AWD"),
			wantTrans: ptr("8-Speed Automatic"),
		},
		{
			name:      "fragment only",
			drive:     ptr(`"transmission":"CVT"`),
			wantDrive: nil,
			wantTrans: ptr("CVT"),
		},
		{
			name:      "fragment before the drive type",
			drive:     ptr(`"transmission":"CVT", FWD`),
			wantDrive: ptr("FWD"),
			wantTrans: ptr("CVT"),
		},
		{
			name:      "genuine transmission wins",
			drive:     ptr(`AWD,"transmission":"CVT"`),
			trans:     ptr(" eCVT "),
			wantDrive: ptr("AWD"),
			wantTrans: ptr("eCVT"),
		},
		{
			name:      "clean drive type untouched",
			drive:     ptr(" AWD "),
			wantDrive: ptr("AWD"),
		},
		{
			name:  "blank values become null",
			drive: ptr("   "),
			trans: ptr(""),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := RepairRow(CarCard{TrimID: 1, DriveType: tc.drive, Transmission: tc.trans})
			assert.Equal(t, tc.wantDrive, got.DriveType)
			assert.Equal(t, tc.wantTrans, got.Transmission)
		})
	}
}

func TestRepairRow_Idempotent(t *testing.T) {
	t.Parallel()

	rows := []CarCard{
		{TrimID: 1, DriveType: ptr(`AWD,"transmission":"8-Speed Automatic"`), Make: ptr(" Toyota ")},
		{TrimID: 2, DriveType: ptr(`FWD,\"transmission\":\"CVT\"`)},
		{TrimID: 3, DriveType: ptr(`"transmission":"CVT"`)},
		{TrimID: 4, Model: ptr(""), Trim: ptr(" XLE ")},
		{TrimID: 5, DriveType: ptr(`AWD transmission:CVT`)},
	}
	for _, row := range rows {
		once := RepairRow(row)
		twice := RepairRow(once)
		assert.Equal(t, once, twice, "trim %d", row.TrimID)
	}
}

func TestRepairRow_NeverFabricatesTransmission(t *testing.T) {
	t.Parallel()

	got := RepairRow(CarCard{TrimID: 9, DriveType: ptr("Front Wheel Drive")})
	require.NotNil(t, got.DriveType)
	assert.Equal(t, "Front Wheel Drive", *got.DriveType)
	assert.Nil(t, got.Transmission)
}

func TestHasEmbeddedTransmission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		drive *string
		want  bool
	}{
		{name: "comma fragment", drive: ptr(`AWD,"transmission":"CVT"`), want: true},
		{name: "space fragment", drive: ptr(`AWD transmission:CVT`), want: true},
		{name: "quoted space fragment", drive: ptr(`AWD "transmission":"8-Speed Automatic"`), want: true},
		{name: "fragment only", drive: ptr(`"transmission":"CVT"`), want: true},
		{name: "clean", drive: ptr("AWD"), want: false},
		{name: "trailing comma is not a fragment", drive: ptr("AWD,"), want: false},
		{name: "nil", drive: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HasEmbeddedTransmission(tt.drive))
		})
	}
}
