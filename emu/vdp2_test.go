package emu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestVDP2_SpriteTypeRoundTrip encodes and decodes every field combination
// of all sixteen sprite types.
func TestVDP2_SpriteTypeRoundTrip(t *testing.T) {
	for typ := uint8(0); typ < 16; typ++ {
		info := &spriteTypes[typ]
		for pri := uint8(0); pri < 1<<info.priWidth; pri++ {
			for ccr := uint8(0); ccr < 1<<info.ccWidth; ccr++ {
				// The lowest color that is neither transparent nor
				// the normal shadow pattern
				color := uint16(1)
				raw := encodeSpriteData(typ, pri, ccr, color, false)
				d := decodeSpriteData(raw, typ)

				if !info.sharedBits {
					assert.Equal(t, pri, d.priority, "type %X priority", typ)
					if info.ccWidth > 0 {
						assert.Equal(t, ccr, d.colorCalcRatio, "type %X ccr", typ)
					}
					assert.Equal(t, color, d.colorData, "type %X color", typ)
				}
				assert.False(t, d.transparent, "type %X transparent", typ)
			}
		}

		// Shadow bit round trip for types that carry it
		if info.hasShadow {
			raw := encodeSpriteData(typ, 0, 0, 1, true)
			d := decodeSpriteData(raw, typ)
			assert.True(t, d.shadowOrWindow, "type %X shadow bit", typ)
		}

		// Transparent and normal shadow patterns
		d := decodeSpriteData(0, typ)
		assert.True(t, d.transparent, "type %X zero pixel", typ)

		shadowPattern := uint16(1)<<info.colorBits - 2
		d = decodeSpriteData(shadowPattern, typ)
		assert.True(t, d.normalShadow, "type %X normal shadow pattern", typ)
	}
}

// TestVDP2_CRAMCacheUpdatesOnWrite verifies the converted color cache
// follows CRAM writes in the 5:5:5 modes.
func TestVDP2_CRAMCacheUpdatesOnWrite(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testCRAM+0x20, 0x7FFF)
	got := v.mem.cramColor(0, 0x10)
	if got != 0xFFFFFFFF {
		t.Errorf("white CRAM entry converts to 0x%08X, expected 0xFFFFFFFF", got)
	}

	v.Write16(testCRAM+0x20, 0x001F) // pure red
	got = v.mem.cramColor(0, 0x10)
	if got != 0xFF0000FF {
		t.Errorf("red CRAM entry converts to 0x%08X, expected 0xFF0000FF", got)
	}
}

// TestVDP2_CRAMCacheRebuildOnModeChange verifies switching RAMCTL back to a
// 5:5:5 mode reconverts existing CRAM contents.
func TestVDP2_CRAMCacheRebuildOnModeChange(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	// Write in mode 2 (no cache maintenance)
	v.Write16(testVDP2Regs+0x00E, 2<<12)
	v.Write16(testCRAM+0x40, 0x03E0) // pure green in 5:5:5 terms

	// Back to mode 0: cache must reflect the write
	v.Write16(testVDP2Regs+0x00E, 0)
	got := v.mem.cramColor(0, 0x20)
	if got != 0xFF00FF00 {
		t.Errorf("cache after mode change = 0x%08X, expected 0xFF00FF00", got)
	}
}

// TestVDP2_BGONDecodesEnables verifies BGON enables and the RBG1 exclusion
// rule.
func TestVDP2_BGONDecodesEnables(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP2Regs+0x020, 0x001F) // NBG0-3 + RBG0
	assert.True(t, v.regs2.bgEnabled[bgNBG0])
	assert.True(t, v.regs2.bgEnabled[bgNBG3])
	assert.True(t, v.regs2.bgEnabled[bgRBG0])
	assert.False(t, v.regs2.bgEnabled[bgRBG1])

	// RBG1 forces the NBGs off
	v.Write16(testVDP2Regs+0x020, 0x003F)
	assert.True(t, v.regs2.bgEnabled[bgRBG1])
	assert.False(t, v.regs2.bgEnabled[bgNBG0])
	assert.False(t, v.regs2.bgEnabled[bgNBG1])
	assert.True(t, v.regs2.bgEnabled[bgRBG0])
}

// TestVDP2_PriorityRegisters verifies PRINA/PRINB/PRIR decode.
func TestVDP2_PriorityRegisters(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP2Regs+0x0F8, 0x0302) // NBG0=2, NBG1=3
	v.Write16(testVDP2Regs+0x0FA, 0x0504) // NBG2=4, NBG3=5
	v.Write16(testVDP2Regs+0x0FC, 0x0006) // RBG0=6

	assert.Equal(t, uint8(2), v.regs2.bgParams[bgNBG0].priorityNumber)
	assert.Equal(t, uint8(3), v.regs2.bgParams[bgNBG1].priorityNumber)
	assert.Equal(t, uint8(4), v.regs2.bgParams[bgNBG2].priorityNumber)
	assert.Equal(t, uint8(5), v.regs2.bgParams[bgNBG3].priorityNumber)
	assert.Equal(t, uint8(6), v.regs2.bgParams[bgRBG0].priorityNumber)
}

// TestVDP2_ColorOffsetDecode verifies the signed 9-bit color offset triple.
func TestVDP2_ColorOffsetDecode(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP2Regs+0x114, 0x0FF) // COAR: +255
	v.Write16(testVDP2Regs+0x116, 0x1FF) // COAG: -1
	v.Write16(testVDP2Regs+0x118, 0x100) // COAB: -256

	assert.Equal(t, int16(255), v.regs2.colorOffsets[0].r)
	assert.Equal(t, int16(-1), v.regs2.colorOffsets[0].g)
	assert.Equal(t, int16(-256), v.regs2.colorOffsets[0].b)
}

// TestVDP2_WindowLogicLaws checks the AND/OR window combination laws on a
// two-window setup.
func TestVDP2_WindowLogicLaws(t *testing.T) {
	build := func(logicAND bool, inv0, inv1 bool) []bool {
		v, _, _ := newTestVDP(t, DefaultConfig())
		v.Write16(testVDP2Regs+0x000, 0x8000)
		v.regs2.tvmdDirty = true
		v.updateResolution()

		// Window 0: x 80..160 (doubled encoding), all lines
		v.Write16(testVDP2Regs+0x0C0, 160)
		v.Write16(testVDP2Regs+0x0C2, 0)
		v.Write16(testVDP2Regs+0x0C4, 320)
		v.Write16(testVDP2Regs+0x0C6, 511)
		// Window 1: x 120..200
		v.Write16(testVDP2Regs+0x0C8, 240)
		v.Write16(testVDP2Regs+0x0CA, 0)
		v.Write16(testVDP2Regs+0x0CC, 400)
		v.Write16(testVDP2Regs+0x0CE, 511)

		ws := WindowSet{
			enabled:  [2]bool{true, true},
			inverted: [2]bool{inv0, inv1},
			logicOR:  !logicAND,
		}
		out := make([]bool, MaxHRes)
		v.renderer.calcWindowInto(0, &ws, false, out)
		return out[:320]
	}

	in := func(x int, lo, hi int) bool { return x >= lo && x <= hi }

	// AND: inside iff inside the intersection
	and := build(true, false, false)
	for _, x := range []int{100, 130, 180, 250} {
		want := in(x, 80, 160) && in(x, 120, 200)
		if and[x] != want {
			t.Errorf("AND window at x=%d: %v, expected %v", x, and[x], want)
		}
	}

	// OR: inside iff inside the union
	or := build(false, false, false)
	for _, x := range []int{60, 100, 180, 250} {
		want := in(x, 80, 160) || in(x, 120, 200)
		if or[x] != want {
			t.Errorf("OR window at x=%d: %v, expected %v", x, or[x], want)
		}
	}

	// Inverting every window flips each pixel's classification under both
	// De Morgan duals
	norm := build(true, false, false)
	flip := build(false, true, true)
	for x := range norm {
		if norm[x] == flip[x] {
			t.Errorf("window inversion did not flip classification at x=%d", x)
		}
	}
}

// TestVDP2_WindowAllDisabledIsOutside verifies the short-circuit: with no
// windows enabled every pixel is outside.
func TestVDP2_WindowAllDisabledIsOutside(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)
	v.regs2.tvmdDirty = true
	v.updateResolution()

	var ws WindowSet
	out := make([]bool, MaxHRes)
	for i := range out {
		out[i] = true
	}
	v.renderer.calcWindowInto(0, &ws, false, out)
	for x := 0; x < 320; x++ {
		if out[x] {
			t.Fatalf("pixel %d inside with all windows disabled", x)
		}
	}
}

// TestVDP2_Illegal8BitRegisterWriteIgnored verifies 8-bit VDP2 register
// access is dropped.
func TestVDP2_Illegal8BitRegisterWriteIgnored(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write8(testVDP2Regs+0x020, 0xFF)
	if v.regs2.bgParams[bgNBG0].enabled {
		t.Error("8-bit BGON write took effect")
	}
}

// TestVDP2_AccessPatternPermissions verifies cycle pattern decode grants
// pattern name and character pattern reads per bank.
func TestVDP2_AccessPatternPermissions(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	setupNBG0Checker(v)

	v.renderer.analyzeAccessPatterns()

	bg := &v.renderer.regs2.bgParams[bgNBG0]
	assert.True(t, bg.patNameAccess[0], "bank A0 pattern name access")
	assert.True(t, bg.charPatAccess[0], "bank A0 character pattern access")
	assert.False(t, bg.patNameAccess[2], "bank B0 pattern name access")
	assert.False(t, bg.charPatDelay, "character pattern delay")
}

// TestVDP2_CharPatternDelayDetected verifies a CP slot timed before the PN
// slot sets the one-tile delay.
func TestVDP2_CharPatternDelayDetected(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	setupNBG0Checker(v)
	// Swap the slots: CP in slot 0, PN in slot 1
	v.Write16(testVDP2Regs+0x010, 0x40FF)

	v.renderer.analyzeAccessPatterns()
	assert.True(t, v.renderer.regs2.bgParams[bgNBG0].charPatDelay)
}
