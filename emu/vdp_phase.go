package emu

// Phase scheduler. A single host-scheduled event walks the horizontal
// phases; wrapping past the left border advances the vertical phase. Every
// handler returns the cycle count until the next phase so the host scheduler
// can re-arm the event.

// resetPhase puts both state machines at the top of the frame.
func (v *VDP) resetPhase() {
	v.hphase = hphaseActive
	v.vphase = vphaseActive
	v.regs2.vcnt = 0
	v.regs2.hcnt = 0
	v.regs2.vcntSkip = 0
}

// OnPhaseUpdate advances the horizontal phase state machine. It is the
// handler registered with the host scheduler; the return value is the number
// of host cycles until the next phase boundary.
func (v *VDP) OnPhaseUpdate() uint64 {
	next := v.hphase + 1
	if next == numHPhases {
		next = hphaseActive
	}
	v.hphase = next

	// HCNT tracks the dot position at the start of the current phase
	v.regs2.hcnt = 0
	for i := 0; i < v.hphase; i++ {
		v.regs2.hcnt += hTimingTable[v.timingHRESOn()][i]
	}

	switch v.hphase {
	case hphaseActive:
		v.beginHPhaseActive()
	case hphaseRightBorder:
		v.beginHPhaseRightBorder()
	case hphaseSync:
		// Intentional gap between the border phases
	case hphaseLeftBorder:
		v.beginHPhaseLeftBorder()
	}

	return uint64(v.hTimings[v.hphase])
}

// timingHRESOn returns the HRESOn value used for table lookups, demoting the
// exclusive-monitor rows unless they are enabled.
func (v *VDP) timingHRESOn() uint8 {
	h := v.regs2.hresOn
	if h >= 4 && !v.cfg.ExclusiveMonitorTimings {
		h &= 3
	}
	return h
}

func (v *VDP) activeEnd() uint32 {
	return v.vTimings[v.vTimingField][vphaseActive]
}

func (v *VDP) beginHPhaseActive() {
	if v.vphase == vphaseActive {
		if v.regs2.vcnt == v.activeEnd()-16 {
			// Roughly 1ms before VBlank IN; lets the SMPC start an
			// INTBACK read that completes just in time
			v.cbINTBACK()
		}
		v.renderer.vdp2RenderLine(v.regs2.vcnt)
	}
}

func (v *VDP) beginHPhaseRightBorder() {
	v.regs2.hblank = true
	v.cbHBlank(true, v.regs2.vblank)

	if v.regs2.vcnt == v.activeEnd() {
		// HBlank IN coinciding with VBlank IN
		v.vdp1.doVBlankErase = v.regs1.vblankErase

		if v.regs2.latchedInterlaceMode != InterlaceNone {
			v.regs2.odd = !v.regs2.odd
			if v.regs2.odd {
				v.vTimingField = 1
			} else {
				v.vTimingField = 0
			}
			v.renderer.vdp2SetField(v.regs2.odd)
		} else if !v.regs2.odd {
			v.regs2.odd = true
			v.vTimingField = 0
			v.renderer.vdp2SetField(true)
		}
	}
}

func (v *VDP) beginHPhaseLeftBorder() {
	if v.vphase == vphaseLastLine {
		erase := false
		swap := false

		if !v.regs1.fbSwapMode {
			// One-cycle erase and swap every field
			erase = true
			swap = true
		} else if v.regs1.fbParamsChanged {
			if v.regs1.fbSwapTrigger {
				swap = true
			} else {
				erase = true
			}
		}
		v.regs1.fbParamsChanged = false

		if v.vdp1.doVBlankErase {
			v.vdp1.doVBlankErase = false
			budget := uint64(v.vblankEraseCyclesPerLine) * uint64(v.vblankEraseLines[v.vTimingField])
			v.renderer.vdp1EraseFramebuffer(budget)
		}

		if erase {
			v.vdp1.doDisplayErase = true
		}
		if swap {
			v.vdp1SwapFramebuffer()
		}
	}

	v.regs2.hblank = false
	if v.vphase == vphaseActive {
		v.cbHBlank(false, v.regs2.vblank)
	}

	v.incrementVCounter()
}

func (v *VDP) incrementVCounter() {
	v.regs2.vcnt++
	for v.regs2.vcnt >= v.vTimings[v.vTimingField][v.vphase] {
		next := v.vphase + 1
		if next == numVPhases {
			v.regs2.vcnt = 0
			next = vphaseActive
		}
		v.vphase = next
		switch v.vphase {
		case vphaseActive:
			v.regs2.vcntSkip = 0
		case vphaseBottomBorder:
			v.beginVPhaseBottomBorder()
		case vphaseBlankingAndSync:
			v.beginVPhaseBlankingAndSync()
		case vphaseVCounterSkip:
			v.regs2.vcntSkip = v.vcntSkip
		case vphaseTopBorder:
			v.beginVPhaseTopBorder()
		case vphaseLastLine:
			v.beginVPhaseLastLine()
		}
	}
}

func (v *VDP) beginVPhaseBottomBorder() {
	v.regs2.vblank = true
	v.cbVBlank(true)
	v.cbSMPCVBlankIN()
}

func (v *VDP) beginVPhaseBlankingAndSync() {
	v.renderer.vdp2EndFrame()

	// The display framebuffer erase has a whole display period to run;
	// no cycle budget needed
	if v.vdp1.doDisplayErase {
		v.vdp1.doDisplayErase = false
		v.renderer.vdp1EraseFramebuffer(0)
	}
}

func (v *VDP) beginVPhaseTopBorder() {
	v.updateResolution()
	v.regs2.LatchTVMD()
	v.renderer.vdp2LatchTVMD()
}

func (v *VDP) beginVPhaseLastLine() {
	v.renderer.vdp2BeginFrame()
	v.regs2.vblank = false
	v.cbVBlank(false)
}

// updateResolution recomputes every timing-derived value after a TVMD write.
// Only runs when the dirty flag is set; hardware applies these at the top
// border, so mid-frame TVMD writes cause no glitches.
func (v *VDP) updateResolution() {
	if !v.regs2.tvmdDirty {
		return
	}
	v.regs2.tvmdDirty = false

	hresOn := v.timingHRESOn()
	exclusive := hresOn&4 != 0
	interlaced := v.regs2.interlaceMode == InterlaceSingle || v.regs2.interlaceMode == InterlaceDouble

	v.hres = hResTable[hresOn&3]
	if exclusive {
		v.vres = 480
	} else {
		sel := v.regs2.vresOn
		if !v.regs2.pal {
			sel &= 1
		}
		v.vres = vResTable[sel]
	}
	if !exclusive && interlaced {
		v.vres *= 2
	}
	v.exclusiveMonitor = exclusive

	// Horizontal timings with the dot clock multiplier applied
	dotClockMult := uint32(4)
	if hresOn&2 != 0 {
		dotClockMult = 2
	}
	for i := range v.hTimings {
		v.hTimings[i] = hTimingTable[hresOn][i] * dotClockMult
	}

	// HCNT presentation
	switch {
	case hresOn <= 1:
		v.regs2.hcntShift = 1 // reads report HCNT << 1... >> 1; HCT0 invalid
		v.regs2.hcntMask = 0x3FE
	case hresOn >= 6:
		v.regs2.hcntShift = 2
		v.regs2.hcntMask = 0x1FF
	default:
		v.regs2.hcntShift = 0
		v.regs2.hcntMask = 0x3FF
	}

	// Vertical timings
	if exclusive {
		v.vTimings = vTimingTableExclusive[hresOn&1]
	} else {
		pal := 0
		if v.regs2.pal {
			pal = 1
		}
		v.vTimings = vTimingTable[pal][v.regs2.vresOn]
	}
	if interlaced && v.regs2.odd {
		v.vTimingField = 1
	} else {
		v.vTimingField = 0
	}

	// VBlank erase budget
	v.vblankEraseCyclesPerLine = vblankEraseCyclesTable[hresOn]
	v.vblankEraseLines = [2]uint32{
		v.vTimings[0][vphaseLastLine] - v.vTimings[0][vphaseActive],
		v.vTimings[1][vphaseLastLine] - v.vTimings[1][vphaseActive],
	}

	// VCNT presentation
	if v.regs2.interlaceMode == InterlaceDouble {
		v.regs2.vcntShift = 1
	} else {
		v.regs2.vcntShift = 0
	}

	// VCNT skip constant
	if exclusive {
		baseSkip := uint32(525)
		if hresOn&1 != 0 {
			baseSkip = 562
		}
		fieldSkip := uint32(0)
		if interlaced && !v.regs2.odd {
			fieldSkip = 1
		}
		v.vcntSkip = ((0x400 - baseSkip) >> 1) - fieldSkip
	} else {
		baseSkip := uint32(263)
		if v.regs2.pal {
			baseSkip = 313
		}
		fieldSkip := uint32(0)
		if interlaced && !v.regs2.odd {
			fieldSkip = 1
		}
		v.vcntSkip = 0x200 - baseSkip + fieldSkip
	}

	v.renderer.vdp2SetResolution(v.hres, v.vres, exclusive)
	if v.cb.VDP2ResolutionChanged != nil {
		v.cb.VDP2ResolutionChanged(v.hres, v.vres)
	}
}

// vdp1SwapFramebuffer switches the draw and display framebuffers and latches
// everything the hardware samples at swap time.
func (v *VDP) vdp1SwapFramebuffer() {
	v.renderer.vdp1SwapFramebuffer()

	v.regs1.prevCommandAddress = v.regs1.currCommandAddress
	v.regs1.prevFrameEnded = v.regs1.currFrameEnded
	v.regs1.currFrameEnded = false

	v.regs1.displayFB ^= 1

	if v.regs1.plotTrigger&2 != 0 {
		v.vdp1BeginFrame()
	}

	v.regs1.LatchEraseParameters()

	if v.cb.VDP1FramebufferSwap != nil {
		v.cb.VDP1FramebufferSwap()
	}
}
