package emu

import "testing"

// TestPhase_TotalCyclesPerLine verifies that the four horizontal phase
// durations sum to the dot-clock-multiplied line length for every HRES mode.
func TestPhase_TotalCyclesPerLine(t *testing.T) {
	for hres := uint16(0); hres < 4; hres++ {
		v, _, _ := newTestVDP(t, DefaultConfig())
		v.Write16(testVDP2Regs+0x000, 0x8000|hres)
		// TVMD latches at the top border; force the recompute directly
		v.regs2.tvmdDirty = true
		v.updateResolution()

		mult := uint32(4)
		if hres&2 != 0 {
			mult = 2
		}
		var raw, total uint32
		for i := 0; i < numHPhases; i++ {
			raw += hTimingTable[hres][i]
			total += v.hTimings[i]
		}
		if total != raw*mult {
			t.Errorf("HRESOn=%d: phase total %d, expected %d*%d", hres, total, raw, mult)
		}
	}
}

// TestPhase_LinesPerField verifies the vertical timing tables terminate at
// the expected line counts for NTSC and PAL.
func TestPhase_LinesPerField(t *testing.T) {
	cases := []struct {
		pal   bool
		lines uint32
	}{
		{false, 263},
		{true, 313},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		if tc.pal {
			cfg.Region = RegionPAL
		}
		v, _, _ := newTestVDP(t, cfg)
		v.Write16(testVDP2Regs+0x000, 0x8000)
		v.regs2.tvmdDirty = true
		v.updateResolution()

		if got := v.vTimings[0][vphaseActive]; got != 224 {
			t.Errorf("PAL=%v: active end %d, expected 224", tc.pal, got)
		}
		if got := v.vTimings[0][numVPhases-1]; got != tc.lines {
			t.Errorf("PAL=%v: total lines %d, expected %d", tc.pal, got, tc.lines)
		}
	}
}

// TestPhase_FullFrameNTSC runs one complete NTSC 320x224 progressive frame
// and checks every callback count and counter value against hardware
// behavior.
func TestPhase_FullFrameNTSC(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000) // DISP, HRESOn=0, VRESOn=0, progressive

	// Run until the first full frame completes, then measure the second
	pumpFrames(t, v, sched, rec, 1)
	*rec = cbRecorder{frames: rec.frames, frame: rec.frame}
	start := rec.frames
	for rec.frames == start {
		sched.handler()
	}

	if rec.vblankIn != 1 {
		t.Errorf("VBlank IN count: %d, expected 1", rec.vblankIn)
	}
	if rec.vblankOut != 1 {
		t.Errorf("VBlank OUT count: %d, expected 1", rec.vblankOut)
	}
	if len(rec.vblankInVCNT) == 1 && rec.vblankInVCNT[0] != 224 {
		t.Errorf("VBlank IN at VCNT %d, expected 224", rec.vblankInVCNT[0])
	}
	if len(rec.vblankOutVCNT) == 1 && rec.vblankOutVCNT[0] != 262 {
		t.Errorf("VBlank OUT at VCNT %d, expected 262", rec.vblankOutVCNT[0])
	}
	if rec.hblankIn != 263 {
		t.Errorf("HBlank IN count: %d, expected 263", rec.hblankIn)
	}
	if rec.smpcVBlankIn != 1 {
		t.Errorf("SMPC VBlank IN count: %d, expected 1", rec.smpcVBlankIn)
	}
	if rec.intback != 1 {
		t.Errorf("INTBACK hint count: %d, expected 1", rec.intback)
	}
	if rec.frameW != 320 || rec.frameH != 224 {
		t.Errorf("frame size %dx%d, expected 320x224", rec.frameW, rec.frameH)
	}
}

// TestPhase_ODDConstantInProgressive verifies the ODD bit stays 1 in
// non-interlaced mode.
func TestPhase_ODDConstantInProgressive(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)

	for frame := 0; frame < 3; frame++ {
		pumpFrames(t, v, sched, rec, 1)
		if v.regs2.ReadTVSTAT()&0x02 == 0 {
			t.Fatalf("frame %d: ODD bit cleared in progressive mode", frame)
		}
	}
}

// TestPhase_ODDTogglesInterlaced verifies ODD flips once per field in
// single-density interlace.
func TestPhase_ODDTogglesInterlaced(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000|2<<6) // LSMD=2: single-density

	// Let the interlace mode latch at a top border first
	pumpFrames(t, v, sched, rec, 2)

	prev := v.regs2.odd
	toggles := 0
	for frame := 0; frame < 4; frame++ {
		pumpFrames(t, v, sched, rec, 1)
		if v.regs2.odd != prev {
			toggles++
			prev = v.regs2.odd
		}
	}
	if toggles != 4 {
		t.Errorf("ODD toggled %d times over 4 fields, expected 4", toggles)
	}
}

// TestPhase_VCNTMonotonicWithinFrame checks VCNT never decreases between
// VBlank OUT and VBlank IN.
func TestPhase_VCNTMonotonicWithinFrame(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)
	pumpFrames(t, v, sched, rec, 1)

	prev := uint32(0)
	inActive := false
	for i := 0; i < 300*numHPhases; i++ {
		sched.handler()
		if v.vphase == vphaseActive {
			cur := v.GetRawVCNT()
			if inActive && cur < prev {
				t.Fatalf("VCNT decreased from %d to %d within active display", prev, cur)
			}
			prev = cur
			inActive = true
		} else if v.vphase == vphaseBottomBorder {
			inActive = false
		}
	}
}

// TestPhase_SwapOncePerFrame verifies the framebuffer swaps exactly once
// per frame in auto swap mode and flips the display index each time.
func TestPhase_SwapOncePerFrame(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)

	pumpFrames(t, v, sched, rec, 1)
	swaps := rec.vdp1Swaps
	fb := v.GetDisplayFBIndex()

	for frame := 0; frame < 3; frame++ {
		pumpFrames(t, v, sched, rec, 1)
		if rec.vdp1Swaps != swaps+1 {
			t.Fatalf("frame %d: %d swaps, expected exactly one more than %d", frame, rec.vdp1Swaps, swaps)
		}
		swaps = rec.vdp1Swaps
		if v.GetDisplayFBIndex() == fb {
			t.Fatalf("frame %d: display framebuffer did not flip", frame)
		}
		fb = v.GetDisplayFBIndex()
	}
}

// TestPhase_VCNTSkipConstant checks the skip constant derivation for the
// standard modes.
func TestPhase_VCNTSkipConstant(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)
	v.regs2.tvmdDirty = true
	v.updateResolution()
	if v.vcntSkip != 0x200-263 {
		t.Errorf("NTSC skip constant 0x%X, expected 0x%X", v.vcntSkip, 0x200-263)
	}

	p, _, _ := newTestVDP(t, Config{Region: RegionPAL})
	p.Write16(testVDP2Regs+0x000, 0x8000)
	p.regs2.tvmdDirty = true
	p.updateResolution()
	if p.vcntSkip != 0x200-313 {
		t.Errorf("PAL skip constant 0x%X, expected 0x%X", p.vcntSkip, 0x200-313)
	}
}

// TestPhase_ResolutionChangeLatchedAtTopBorder verifies a TVMD write does
// not take effect until the next top border.
func TestPhase_ResolutionChangeLatchedAtTopBorder(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)
	pumpFrames(t, v, sched, rec, 1)

	h0, _ := v.Resolution()
	if h0 != 320 {
		t.Fatalf("initial HRes %d, expected 320", h0)
	}

	// Switch to 352 mid-frame; resolution must hold until latched
	v.Write16(testVDP2Regs+0x000, 0x8001)
	h1, _ := v.Resolution()
	if h1 != 320 {
		t.Errorf("HRes changed to %d before top border", h1)
	}

	pumpFrames(t, v, sched, rec, 2)
	h2, _ := v.Resolution()
	if h2 != 352 {
		t.Errorf("HRes %d after latch, expected 352", h2)
	}
}

// TestExternalLatch verifies the SMPC external latch loads the counters and
// sets EXLTFG only inside the active area.
func TestExternalLatch(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)
	v.Write16(testVDP2Regs+0x002, 0x0200) // EXTEN.EXLTEN

	v.ExternalLatch(100, 50)
	if v.regs2.ReadTVSTAT()&0x200 == 0 {
		t.Error("EXLTFG not set for in-range latch")
	}
	if got := v.GetVCNT(); got != 50+16 {
		t.Errorf("latched VCNT %d, expected %d", got, 50+16)
	}

	v2, _, _ := newTestVDP(t, DefaultConfig())
	v2.Write16(testVDP2Regs+0x000, 0x8000)
	v2.Write16(testVDP2Regs+0x002, 0x0200)
	v2.ExternalLatch(1000, 600)
	if v2.regs2.ReadTVSTAT()&0x200 != 0 {
		t.Error("EXLTFG set for out-of-range latch")
	}
}
