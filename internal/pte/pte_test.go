package pte

import "testing"

// Round-trip property (spec.md §8, Property 1): decode(encode(P)) == P on
// the field subset the ITB_PTE image carries.
func TestITBPTERoundTrip(t *testing.T) {
	tests := []PTE{
		{},
		{Valid: true, PFN: 0x12345, ASM: true, ReadEnable: [4]bool{true, true, true, true}},
		{Valid: true, FOE: true, GH: GH8, PFN: 0xFFFFF},
		{Valid: true, GH: GH512, PFN: 1, ReadEnable: [4]bool{true, false, false, true}},
	}
	for i, want := range tests {
		raw := EncodeITBPTERead(want)
		got := DecodeITBPTEWrite(raw)
		if got.Valid != want.Valid || got.FOE != want.FOE || got.ASM != want.ASM ||
			got.GH != want.GH || got.PFN != want.PFN || got.ReadEnable != want.ReadEnable {
			t.Errorf("case %d: round trip mismatch got %+v want %+v", i, got, want)
		}
	}
}

func TestEncodeDecodeFullPTE(t *testing.T) {
	p := PTE{
		Valid: true, FOR: false, FOW: true, FOE: false, ASM: true, GH: GH64,
		ReadEnable:  [4]bool{true, true, false, true},
		WriteEnable: [4]bool{true, false, false, false},
		Software:    0xBEEF,
		PFN:         0xABCDE,
	}
	got := Decode(p.Encode())
	if got != p {
		t.Errorf("got %+v want %+v", got, p)
	}
}

func TestClassifyVA(t *testing.T) {
	const ctl43 VaCtl = 0
	const ctl48 VaCtl = vaCtlVA48Bit

	tests := []struct {
		name string
		va   uint64
		ctl  VaCtl
		want VAClass
	}{
		{"43-bit kseg", 0xFFFFFC0000001000, ctl43, ClassKSeg},
		{"43-bit user", 0x0000000000001000, ctl43, ClassUser},
		{"43-bit kernel seg1", signExtend(1<<41, 43), ctl43, ClassKernel},
		{"non-canonical", 0x1234000000000000, ctl43, ClassUnknown},
		{"48-bit kseg", signExtend(uint64(2)<<46, 48), ctl48, ClassKSeg},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyVA(tc.va, tc.ctl); got != tc.want {
				t.Errorf("ClassifyVA(%#x) = %v, want %v", tc.va, got, tc.want)
			}
		})
	}
}

// Scenario S1 (spec.md §8): KSeg translation, 43-bit mode.
func TestKsegToPhysicalScenarioS1(t *testing.T) {
	va := uint64(0xFFFFFC0000001000)
	want := uint64(0x00000C0000001000)
	if got := KsegToPhysical(va); got != want {
		t.Errorf("KsegToPhysical(%#x) = %#x, want %#x", va, got, want)
	}
}

// Scenario S2 (spec.md §8): PFN=0x12345, page offset 0 -> pa=0x2468A000.
func TestPhysicalAddressScenarioS2(t *testing.T) {
	p := PTE{PFN: 0x12345}
	got := p.PhysicalAddress(0x2000)
	want := uint64(0x2468A000)
	if got != want {
		t.Errorf("PhysicalAddress = %#x, want %#x", got, want)
	}
}

// Scenario S5 (spec.md §8): FOW set wins over KWE=1.
func TestCheckPermissionFaultOnWriteScenarioS5(t *testing.T) {
	p := PTE{Valid: true, FOW: true, WriteEnable: [4]bool{true, false, false, false}}
	if out := CheckPermission(p, AccessWrite, Kernel); out != AccessViolation {
		t.Errorf("CheckPermission = %v, want AccessViolation", out)
	}
	if fk := FaultFor(p, AccessWrite); fk != FaultOnWrite {
		t.Errorf("FaultFor = %v, want FaultOnWrite", fk)
	}
}

// Property 7 (spec.md §8): a zero R/W enable bit always denies, regardless
// of FOR/FOW/FOE state.
func TestCheckPermissionMonotonicity(t *testing.T) {
	p := PTE{Valid: true}
	if out := CheckPermission(p, AccessRead, User); out != AccessViolation {
		t.Errorf("expected AccessViolation with URE=0, got %v", out)
	}
	if out := CheckPermission(p, AccessExecute, Kernel); out != AccessViolation {
		t.Errorf("execute requires read permission, got %v", out)
	}
}

func TestExtractVPNWidths(t *testing.T) {
	va := uint64(0x0000123456789000)
	vpn43 := ExtractVPN(va, 0)
	vpn48 := ExtractVPN(va, vaCtlVA48Bit)
	if vpn48 < vpn43 {
		t.Errorf("wider VA width should not shrink VPN mask: vpn43=%#x vpn48=%#x", vpn43, vpn48)
	}
}

func TestGranularityHintPageCount(t *testing.T) {
	cases := map[GranularityHint]uint64{GH1: 1, GH8: 8, GH64: 64, GH512: 512}
	for gh, want := range cases {
		if got := gh.PageCount(); got != want {
			t.Errorf("GH %d PageCount = %d, want %d", gh, got, want)
		}
	}
}
