package emu

import "testing"

// TestVDP1_EmptyCommandList covers the simplest frame: an end-flagged
// control word at address 0, triggered by PTMR mode 01.
func TestVDP1_EmptyCommandList(t *testing.T) {
	v, sched, rec := newTestVDP(t, DefaultConfig())
	v.Write16(testVDP2Regs+0x000, 0x8000)

	v.Write16(testVDP1VRAM, 0x8000)      // end
	v.Write16(testVDP1Regs+0x04, 0x0001) // PTMR: plot now

	if !v.VDP1Drawing() {
		t.Fatal("PTMR=01 write did not start drawing")
	}

	pumpFrames(t, v, sched, rec, 2)

	if !v.VDP1FrameEnded() && !v.regs1.prevFrameEnded {
		t.Error("command list did not end")
	}
	if rec.vdp1Finished != 1 {
		t.Errorf("VDP1DrawFinished called %d times, expected 1", rec.vdp1Finished)
	}
	if rec.spriteDrawEnd != 1 {
		t.Errorf("TriggerSpriteDrawEnd called %d times, expected 1", rec.spriteDrawEnd)
	}
}

// TestVDP1_CommandFetchCost verifies every command charges at least the
// 16-cycle fetch overhead.
func TestVDP1_CommandFetchCost(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM, 0x4000) // skip, jump next
	v.Write16(testVDP1VRAM+0x20, 0x8000)
	v.vdp1BeginFrame()

	cycles := v.vdp1ProcessCommand()
	if cycles < 16 {
		t.Errorf("skipped command cost %d cycles, expected >= 16", cycles)
	}
}

// TestVDP1_RunawayJumpToZero verifies an Assign jump back to address 0
// terminates the list instead of looping forever.
func TestVDP1_RunawayJumpToZero(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	// Command at 0: skip with Assign to link 0
	v.Write16(testVDP1VRAM+0x00, 0x5000) // skip, jumpMode=assign
	v.Write16(testVDP1VRAM+0x02, 0x0000) // link -> 0
	v.vdp1BeginFrame()

	for i := 0; i < 10 && v.vdp1.drawing; i++ {
		v.vdp1ProcessCommand()
	}
	if v.vdp1.drawing {
		t.Error("runaway jump to 0 did not terminate the command list")
	}
}

// TestVDP1_CallReturn verifies CALL saves the return address once and
// RETURN pops it; a RETURN with no pending call falls through.
func TestVDP1_CallReturn(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	// 0x00: skip + call -> 0x100
	v.Write16(testVDP1VRAM+0x00, 0x6000)
	v.Write16(testVDP1VRAM+0x02, 0x100>>3)
	// 0x100: skip + call -> 0x200 (nested; must not update return)
	v.Write16(testVDP1VRAM+0x100, 0x6000)
	v.Write16(testVDP1VRAM+0x102, 0x200>>3)
	// 0x200: skip + return -> back to 0x20
	v.Write16(testVDP1VRAM+0x200, 0x7000)
	// 0x20: end
	v.Write16(testVDP1VRAM+0x20, 0x8000)

	v.vdp1BeginFrame()

	v.vdp1ProcessCommand() // call at 0x00
	if got := v.regs1.currCommandAddress; got != 0x100 {
		t.Fatalf("after call: address 0x%X, expected 0x100", got)
	}
	if got := v.regs1.returnAddress; got != 0x20 {
		t.Fatalf("return address 0x%X, expected 0x20", got)
	}

	v.vdp1ProcessCommand() // nested call at 0x100
	if got := v.regs1.returnAddress; got != 0x20 {
		t.Fatalf("nested call clobbered return address: 0x%X", got)
	}

	v.vdp1ProcessCommand() // return at 0x200
	if got := v.regs1.currCommandAddress; got != 0x20 {
		t.Fatalf("after return: address 0x%X, expected 0x20", got)
	}
	if v.regs1.returnAddress != kVDP1NoReturn {
		t.Error("return did not clear the pending return address")
	}

	v.vdp1ProcessCommand() // end at 0x20
	if v.vdp1.drawing {
		t.Error("end command did not stop drawing")
	}
}

// TestVDP1_ReturnWithoutCall verifies RETURN with no pending call simply
// advances to the next command.
func TestVDP1_ReturnWithoutCall(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x7000) // skip + return, nothing pending
	v.vdp1BeginFrame()
	v.vdp1ProcessCommand()
	if got := v.regs1.currCommandAddress; got != 0x20 {
		t.Errorf("address 0x%X, expected 0x20", got)
	}
}

// TestVDP1_AliasCommandCodesValid verifies the undocumented alias codes
// 0x3, 0x7 and 0xB are accepted as commands instead of aborting the list.
func TestVDP1_AliasCommandCodesValid(t *testing.T) {
	for _, code := range []uint16{cmdDrawDistortedAlt, cmdDrawPolylinesAlt, cmdSetUserClippingAlt} {
		v, _, _ := newTestVDP(t, DefaultConfig())

		// Degenerate coordinates keep the draw aliases cheap
		v.Write16(testVDP1VRAM+0x00, code)
		v.Write16(testVDP1VRAM+0x20, 0x8000)

		v.vdp1BeginFrame()
		v.vdp1ProcessCommand()
		if !v.vdp1.drawing {
			t.Errorf("command code 0x%X aborted the list", code)
		}
		v.vdp1ProcessCommand()
		if v.vdp1.drawing {
			t.Errorf("list with alias code 0x%X did not reach the end word", code)
		}
	}
}

// TestVDP1_UserClippingAltAlias verifies command code 0xB updates the user
// clip area exactly like 0x8.
func TestVDP1_UserClippingAltAlias(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	r := v.Renderer()

	writeVDP1Command(v, 0x00, [16]uint16{cmdSetUserClippingAlt, 0, 0, 0, 0, 0, 15, 25, 0, 0, 90, 120})
	writeVDP1Command(v, 0x20, [16]uint16{0x8000})

	v.vdp1BeginFrame()
	for v.vdp1.drawing {
		v.vdp1ProcessCommand()
	}

	if r.vdp1Ctx.userClipX0 != 15 || r.vdp1Ctx.userClipY0 != 25 ||
		r.vdp1Ctx.userClipX1 != 90 || r.vdp1Ctx.userClipY1 != 120 {
		t.Errorf("user clip (%d,%d)-(%d,%d) via alias, expected (15,25)-(90,120)",
			r.vdp1Ctx.userClipX0, r.vdp1Ctx.userClipY0, r.vdp1Ctx.userClipX1, r.vdp1Ctx.userClipY1)
	}
}

// TestVDP1_InvalidCommandEndsList verifies an unknown command code aborts
// the list.
func TestVDP1_InvalidCommandEndsList(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x000F) // command 0xF: invalid
	v.vdp1BeginFrame()
	v.vdp1ProcessCommand()
	if v.vdp1.drawing {
		t.Error("invalid command did not end the list")
	}
	if !v.regs1.currFrameEnded {
		t.Error("invalid command did not set the frame-ended flag")
	}
}

// TestVDP1_CommandListTermination verifies any Next-linked list with an end
// word halts within the list length.
func TestVDP1_CommandListTermination(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	const n = 50
	for i := uint32(0); i < n; i++ {
		v.Write16(testVDP1VRAM+i*0x20, 0x4000) // skip
	}
	v.Write16(testVDP1VRAM+n*0x20, 0x8000) // end

	v.vdp1BeginFrame()
	for i := 0; i <= n+1 && v.vdp1.drawing; i++ {
		v.vdp1ProcessCommand()
	}
	if v.vdp1.drawing {
		t.Errorf("list of %d commands did not terminate within %d iterations", n+1, n+2)
	}
}

// TestVDP1_AdvanceSpillover verifies overspent work carries over: a command
// whose cost exceeds a tiny budget still runs, and the excess is banked as
// spillover for later calls.
func TestVDP1_AdvanceSpillover(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x4000) // skip (16 cycles)
	v.Write16(testVDP1VRAM+0x20, 0x8000) // end

	v.vdp1BeginFrame()

	// 4x multiplier: 1 host cycle = 4 budget, command costs 16.
	// First call runs the command and banks 12 cycles of spillover.
	v.Advance(1)
	if v.vdp1.spilloverCycles != 12 {
		t.Errorf("spillover %d after 4-cycle budget, expected 12", v.vdp1.spilloverCycles)
	}
}

// TestVDP1_VRAMWritePenalty verifies CPU VRAM writes while drawing charge
// the 30-cycle stall.
func TestVDP1_VRAMWritePenalty(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x8000)
	v.vdp1BeginFrame()

	before := v.vdp1.timingPenaltyCycles
	v.Write16(testVDP1VRAM+0x1000, 0x1234)
	if got := v.vdp1.timingPenaltyCycles - before; got != 30 {
		t.Errorf("VRAM write penalty %d, expected 30", got)
	}

	// Not drawing: no penalty
	v.vdp1EndFrame()
	before = v.vdp1.timingPenaltyCycles
	v.Write16(testVDP1VRAM+0x1000, 0x1234)
	if v.vdp1.timingPenaltyCycles != before {
		t.Error("VRAM write charged a penalty while idle")
	}
}

// TestVDP1_ClippingCommands verifies the clipping and local coordinate
// commands update the renderer drawing state.
func TestVDP1_ClippingCommands(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())
	r := v.Renderer()

	writeVDP1Command(v, 0x00, [16]uint16{0x0009, 0, 0, 0, 0, 0, 0, 0, 0, 0, 199, 149})
	writeVDP1Command(v, 0x20, [16]uint16{0x000A, 0, 0, 0, 0, 0, 30, 40})
	writeVDP1Command(v, 0x40, [16]uint16{0x0008, 0, 0, 0, 0, 0, 10, 20, 0, 0, 100, 110})
	writeVDP1Command(v, 0x60, [16]uint16{0x8000})

	v.vdp1BeginFrame()
	for v.vdp1.drawing {
		v.vdp1ProcessCommand()
	}

	if r.vdp1Ctx.sysClipH != 199 || r.vdp1Ctx.sysClipV != 149 {
		t.Errorf("system clip (%d,%d), expected (199,149)", r.vdp1Ctx.sysClipH, r.vdp1Ctx.sysClipV)
	}
	if r.vdp1Ctx.localX != 30 || r.vdp1Ctx.localY != 40 {
		t.Errorf("local origin (%d,%d), expected (30,40)", r.vdp1Ctx.localX, r.vdp1Ctx.localY)
	}
	if r.vdp1Ctx.userClipX0 != 10 || r.vdp1Ctx.userClipY0 != 20 ||
		r.vdp1Ctx.userClipX1 != 100 || r.vdp1Ctx.userClipY1 != 110 {
		t.Errorf("user clip (%d,%d)-(%d,%d), expected (10,20)-(100,110)",
			r.vdp1Ctx.userClipX0, r.vdp1Ctx.userClipY0, r.vdp1Ctx.userClipX1, r.vdp1Ctx.userClipY1)
	}
}

// TestVDP1_ENDRTerminatesDrawing verifies a write to ENDR force-stops the
// command engine.
func TestVDP1_ENDRTerminatesDrawing(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x4000)
	v.vdp1BeginFrame()
	v.Write16(testVDP1Regs+0x0C, 0)
	if v.vdp1.drawing {
		t.Error("ENDR write did not terminate drawing")
	}
}

// TestVDP1_StatusRegisters verifies EDSR/LOPR/COPR readback.
func TestVDP1_StatusRegisters(t *testing.T) {
	v, _, _ := newTestVDP(t, DefaultConfig())

	v.Write16(testVDP1VRAM+0x00, 0x8000)
	v.vdp1BeginFrame()
	v.vdp1ProcessCommand()

	edsr := v.Read16(testVDP1Regs + 0x10)
	if edsr&2 == 0 {
		t.Errorf("EDSR 0x%04X: CEF not set after end", edsr)
	}

	// COPR reports the current command address >> 3
	if got := v.Read16(testVDP1Regs + 0x14); got != uint16(v.regs1.currCommandAddress>>3) {
		t.Errorf("COPR 0x%04X, expected 0x%04X", got, v.regs1.currCommandAddress>>3)
	}
}
