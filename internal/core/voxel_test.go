package core

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	mats := []uint16{0, 1, 2, 255, 256, 9999, 10000, 65535}
	temps := []uint16{0, 1, 150, 2047, 4094, 4095}
	vels := []int8{-128, -17, -1, 0, 1, 15, 16, 127}
	for _, mat := range mats {
		for _, temp := range temps {
			for _, vx := range vels {
				for _, pr := range []uint8{0, 1, 31, 63} {
					for _, fl := range []uint8{0, FlagActive, FlagBonded, 63} {
						in := Fields{Material: mat, Temp: temp, VelX: vx, VelY: -vx, VelZ: vx, Pressure: pr, Flags: fl}
						out := Unpack(Pack(in))
						if out != in {
							t.Fatalf("round trip mismatch: in=%+v out=%+v", in, out)
						}
					}
				}
			}
		}
	}
}

func TestPackVelXStraddle(t *testing.T) {
	// velocity x straddles the word boundary; every value must survive.
	for v := -128; v <= 127; v++ {
		got := Unpack(Pack(Fields{Material: 42, VelX: int8(v)}))
		if got.VelX != int8(v) {
			t.Fatalf("vel_x %d came back as %d", v, got.VelX)
		}
	}
}

func TestPackZeroIsAir(t *testing.T) {
	v := Pack(Fields{})
	if v.Lo != 0 || v.Hi != 0 {
		t.Fatalf("zero fields must pack to zero words, got %08x %08x", v.Lo, v.Hi)
	}
	if !v.IsAir() {
		t.Fatalf("zero voxel must be air")
	}
}

func TestPackClampsTemp(t *testing.T) {
	v := Pack(Fields{Material: 1, Temp: 5000})
	if got := v.Temp(); got != TempQuantMax {
		t.Fatalf("temp not clamped: %d", got)
	}
}

func TestVoxelAccessors(t *testing.T) {
	v := Pack(Fields{Material: 7, Temp: 300, Pressure: 12, Flags: FlagActive})
	if v.Material() != 7 {
		t.Fatalf("material accessor: %d", v.Material())
	}
	if v.Temp() != 300 {
		t.Fatalf("temp accessor: %d", v.Temp())
	}
	v2 := v.WithTemp(900).WithMaterial(9)
	f := Unpack(v2)
	if f.Material != 9 || f.Temp != 900 || f.Pressure != 12 || f.Flags != FlagActive {
		t.Fatalf("WithTemp/WithMaterial clobbered other fields: %+v", f)
	}
}

func TestQuantizeRoundTrip(t *testing.T) {
	for q := 0; q <= TempQuantMax; q++ {
		back := QuantizeTemp(DequantizeTemp(uint16(q)))
		if back != uint16(q) {
			t.Fatalf("quantize(dequantize(%d)) = %d", q, back)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	if QuantizeTemp(-5) != 0 {
		t.Fatalf("negative kelvin must clamp to 0")
	}
	if QuantizeTemp(99999) != TempQuantMax {
		t.Fatalf("over-max kelvin must clamp to quant max")
	}
	if QuantizeTemp(AmbientTempK) != AmbientQ {
		t.Fatalf("ambient quantizes to %d, want %d", QuantizeTemp(AmbientTempK), AmbientQ)
	}
}
