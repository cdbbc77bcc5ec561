package emu

import "testing"

// testScheduler is a minimal host scheduler for tests: it captures the
// phase handler so tests can pump it manually.
type testScheduler struct {
	handler func() uint64
}

func (s *testScheduler) RegisterEvent(name string, handler func() uint64) {
	s.handler = handler
}

// cbRecorder records every host callback the VDP raises.
type cbRecorder struct {
	hblankIn    int
	hblankOut   int
	vblankIn    int
	vblankOut   int
	vblankInVCNT  []uint32
	vblankOutVCNT []uint32

	smpcVBlankIn  int
	intback       int
	spriteDrawEnd int

	frames  int
	frameW  uint32
	frameH  uint32
	frame   []uint32

	vdp1Finished int
	vdp1Swaps    int
	resolutions  [][2]uint32
}

func (r *cbRecorder) callbacks(v **VDP) Callbacks {
	return Callbacks{
		HBlankStateChange: func(hblank, vblank bool) {
			if hblank {
				r.hblankIn++
			} else {
				r.hblankOut++
			}
		},
		VBlankStateChange: func(vblank bool) {
			if vblank {
				r.vblankIn++
				r.vblankInVCNT = append(r.vblankInVCNT, (*v).GetRawVCNT())
			} else {
				r.vblankOut++
				r.vblankOutVCNT = append(r.vblankOutVCNT, (*v).GetRawVCNT())
			}
		},
		TriggerSMPCVBlankIN:         func() { r.smpcVBlankIn++ },
		TriggerOptimizedINTBACKRead: func() { r.intback++ },
		TriggerSpriteDrawEnd:        func() { r.spriteDrawEnd++ },
		FrameComplete: func(fb []uint32, w, h uint32) {
			r.frames++
			r.frameW, r.frameH = w, h
			if uint32(len(r.frame)) != w*h {
				r.frame = make([]uint32, w*h)
			}
			copy(r.frame, fb)
		},
		VDP1DrawFinished:    func() { r.vdp1Finished++ },
		VDP1FramebufferSwap: func() { r.vdp1Swaps++ },
		VDP2ResolutionChanged: func(w, h uint32) {
			r.resolutions = append(r.resolutions, [2]uint32{w, h})
		},
	}
}

// newTestVDP builds a VDP with recording callbacks and a manual scheduler.
func newTestVDP(t *testing.T, cfg Config) (*VDP, *testScheduler, *cbRecorder) {
	t.Helper()
	sched := &testScheduler{}
	rec := &cbRecorder{}
	var v *VDP
	v, err := NewVDP(cfg, sched, rec.callbacks(&v))
	if err != nil {
		t.Fatalf("NewVDP: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v, sched, rec
}

// pumpFrames drives the phase event until n more frames complete, feeding
// the VDP1 engine the same cycle budget the scheduler grants.
func pumpFrames(t *testing.T, v *VDP, sched *testScheduler, rec *cbRecorder, n int) {
	t.Helper()
	target := rec.frames + n
	for i := 0; i < 20_000_000 && rec.frames < target; i++ {
		cycles := sched.handler()
		v.Advance(cycles)
	}
	if rec.frames < target {
		t.Fatalf("VDP did not produce %d frames", n)
	}
}

// pumpPhases advances the phase machine n times without VDP1 cycles.
func pumpPhases(v *VDP, sched *testScheduler, n int) {
	for i := 0; i < n; i++ {
		sched.handler()
	}
}

// Bus address bases used throughout the tests.
const (
	testVDP1VRAM = 0x5C00000
	testVDP1FB   = 0x5C80000
	testVDP1Regs = 0x5D00000
	testVDP2VRAM = 0x5E00000
	testCRAM     = 0x5F00000
	testVDP2Regs = 0x5F80000
)

// writeVDP1Command writes one 16-word command table to VDP1 VRAM.
func writeVDP1Command(v *VDP, addr uint32, words [16]uint16) {
	for i, w := range words {
		v.Write16(testVDP1VRAM+addr+uint32(i)*2, w)
	}
}

// setupNBG0Checker programs a 320x224 display with a 16-color checkerboard
// on NBG0, the scene most render tests build on.
func setupNBG0Checker(v *VDP) {
	v.Write16(testVDP2Regs+0x000, 0x8000) // TVMD: display on
	v.Write16(testVDP2Regs+0x00E, 0x0000) // RAMCTL: CRAM mode 0
	v.Write16(testVDP2Regs+0x010, 0x04FF) // CYCA0L: PN NBG0, CP NBG0
	v.Write16(testVDP2Regs+0x012, 0xFFFF) // CYCA0U
	v.Write16(testVDP2Regs+0x020, 0x0001) // BGON: NBG0
	v.Write16(testVDP2Regs+0x028, 0x0000) // CHCTLA: cell, 16 colors, 1x1
	v.Write16(testVDP2Regs+0x030, 0x8000) // PNCN0: 1-word
	v.Write16(testVDP2Regs+0x03A, 0x0000) // PLSZ
	v.Write16(testVDP2Regs+0x03C, 0x0000) // MPOFN
	v.Write16(testVDP2Regs+0x040, 0x0101) // MPABN0
	v.Write16(testVDP2Regs+0x042, 0x0101) // MPCDN0
	v.Write16(testVDP2Regs+0x0F8, 0x0007) // PRINA: NBG0 priority 7

	// Palette entries 1 and 2
	v.Write16(testCRAM+0x02, 0x7FFF)
	v.Write16(testCRAM+0x04, 0x001F)

	// Tiles 0 (color 1) and 1 (color 2)
	for i := uint32(0); i < 32; i += 2 {
		v.Write16(testVDP2VRAM+i, 0x1111)
		v.Write16(testVDP2VRAM+0x20+i, 0x2222)
	}

	// Checkerboard pattern names at page 1 (0x2000)
	for ty := uint32(0); ty < 64; ty++ {
		for tx := uint32(0); tx < 64; tx++ {
			entry := uint16(0)
			if (tx+ty)&1 != 0 {
				entry = 1
			}
			v.Write16(testVDP2VRAM+0x2000+(ty*64+tx)*2, entry)
		}
	}
}

// encodeSpriteData builds a raw sprite pixel from decoded fields per the
// type table, the inverse of decodeSpriteData.
func encodeSpriteData(typ uint8, priority, ccr uint8, colorData uint16, shadow bool) uint16 {
	info := &spriteTypes[typ]
	raw := colorData & (1<<info.colorBits - 1)
	if !info.sharedBits {
		raw |= uint16(priority&(1<<info.priWidth-1)) << info.priShift
		if info.ccWidth > 0 {
			raw |= uint16(ccr&(1<<info.ccWidth-1)) << info.ccShift
		}
	}
	if info.hasShadow && shadow {
		raw |= 0x8000
	}
	return raw
}
