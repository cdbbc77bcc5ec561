package emu

import "encoding/binary"

// VDP1 command words, fetched big-endian from VDP1 VRAM at the command
// address. Each command table is 0x20 bytes.
const (
	cmdOffCTRL = 0x00
	cmdOffLINK = 0x02
	cmdOffPMOD = 0x04
	cmdOffCOLR = 0x06
	cmdOffSRCA = 0x08
	cmdOffSIZE = 0x0A
	cmdOffXA   = 0x0C
	cmdOffYA   = 0x0E
	cmdOffXB   = 0x10
	cmdOffYB   = 0x12
	cmdOffXC   = 0x14
	cmdOffYC   = 0x16
	cmdOffXD   = 0x18
	cmdOffYD   = 0x1A
	cmdOffGRDA = 0x1C
)

// Command types (CMDCTRL bits 0-3). Codes 0x3, 0x7 and 0xB are
// undocumented aliases of 0x2, 0x5 and 0x8 that commercial titles rely on.
const (
	cmdDrawNormalSprite    = 0x0
	cmdDrawScaledSprite    = 0x1
	cmdDrawDistortedSprite = 0x2
	cmdDrawDistortedAlt    = 0x3
	cmdDrawPolygon         = 0x4
	cmdDrawPolylines       = 0x5
	cmdDrawLine            = 0x6
	cmdDrawPolylinesAlt    = 0x7
	cmdSetUserClipping     = 0x8
	cmdSetSystemClipping   = 0x9
	cmdSetLocalCoordinates = 0xA
	cmdSetUserClippingAlt  = 0xB
)

// Jump types (CMDCTRL bits 12-13; bit 14 is the skip flag)
const (
	jumpNext = iota
	jumpAssign
	jumpCall
	jumpReturn
)

// vdp1Control is the decoded CMDCTRL word.
type vdp1Control struct {
	raw       uint16
	end       bool
	skip      bool
	jumpMode  uint8
	zoomPoint uint8
	charFlip  uint8
	command   uint8
}

func decodeVDP1Control(raw uint16) vdp1Control {
	return vdp1Control{
		raw:       raw,
		end:       raw&0x8000 != 0,
		skip:      raw&0x4000 != 0,
		jumpMode:  uint8((raw >> 12) & 3),
		zoomPoint: uint8((raw >> 8) & 0xF),
		charFlip:  uint8((raw >> 4) & 3),
		command:   uint8(raw & 0xF),
	}
}

func (c vdp1Control) isValid() bool {
	switch c.command {
	case cmdDrawNormalSprite, cmdDrawScaledSprite, cmdDrawDistortedSprite,
		cmdDrawDistortedAlt, cmdDrawPolygon, cmdDrawPolylines, cmdDrawLine,
		cmdDrawPolylinesAlt, cmdSetUserClipping, cmdSetSystemClipping,
		cmdSetLocalCoordinates, cmdSetUserClippingAlt:
		return true
	}
	return false
}

// vdp1Read16 reads a big-endian word from host-side VDP1 VRAM.
func (v *VDP) vdp1Read16(address uint32) uint16 {
	return binary.BigEndian.Uint16(v.mem.vram1[address&(VDP1VRAMSize-2):])
}

// Advance runs the VDP1 command engine for the given number of host cycles.
// The budget is scaled by 4 to compensate for the emulator-wide clock
// division, then drained by the spillover from the previous call and any
// accumulated stall penalty before any command runs.
func (v *VDP) Advance(cycles uint64) {
	if !v.vdp1.drawing {
		return
	}

	budget := cycles * 4

	if v.vdp1.spilloverCycles >= budget {
		v.vdp1.spilloverCycles -= budget
		return
	}
	budget -= v.vdp1.spilloverCycles
	v.vdp1.spilloverCycles = 0

	if v.vdp1.timingPenaltyCycles >= budget {
		v.vdp1.timingPenaltyCycles -= budget
		return
	}
	budget -= v.vdp1.timingPenaltyCycles
	v.vdp1.timingPenaltyCycles = 0

	for v.vdp1.drawing && budget > 0 {
		spent := v.vdp1ProcessCommand()
		if spent >= budget {
			v.vdp1.spilloverCycles = spent - budget
			budget = 0
		} else {
			budget -= spent
		}
	}
}

// vdp1BeginFrame starts command list processing from address 0.
func (v *VDP) vdp1BeginFrame() {
	v.regs1.returnAddress = kVDP1NoReturn
	v.regs1.currCommandAddress = 0
	v.regs1.currFrameEnded = false
	v.renderer.vdp1BeginFrame()
	v.vdp1.drawing = true
}

// vdp1EndFrame terminates command list processing and signals the host.
func (v *VDP) vdp1EndFrame() {
	v.vdp1.drawing = false
	v.vdp1.timingPenaltyCycles = 0
	v.regs1.currFrameEnded = true
	v.cbSpriteDrawEnd()
	v.renderer.vdp1EndFrame()
}

// vdp1ProcessCommand fetches, dispatches and costs one command, then follows
// its jump link. Returns the cycles charged.
func (v *VDP) vdp1ProcessCommand() uint64 {
	if !v.vdp1.drawing {
		return 0
	}

	cmdAddress := v.regs1.currCommandAddress
	control := decodeVDP1Control(v.vdp1Read16(cmdAddress))

	// Every command costs 16 cycles to fetch, even when skipped
	cycles := uint64(16)

	if control.end {
		v.vdp1EndFrame()
	} else if !control.skip {
		if !control.isValid() {
			v.vdp1EndFrame()
			return cycles
		}
		v.renderer.vdp1ExecuteCommand(cmdAddress, control)
		cycles += v.vdp1CalcCommandTiming(cmdAddress, control)
	}

	switch control.jumpMode {
	case jumpNext:
		v.regs1.currCommandAddress += 0x20
	case jumpAssign:
		v.regs1.currCommandAddress = (uint32(v.vdp1Read16(cmdAddress+cmdOffLINK)) << 3) &^ 0x1F
		// Jumping back to address 0 is how at least one title (Sonic R)
		// ends up in an infinite loop; abort instead
		if v.regs1.currCommandAddress == 0 {
			v.vdp1EndFrame()
			return cycles
		}
	case jumpCall:
		// Nested calls do not update the return address
		if v.regs1.returnAddress == kVDP1NoReturn {
			v.regs1.returnAddress = cmdAddress + 0x20
		}
		v.regs1.currCommandAddress = (uint32(v.vdp1Read16(cmdAddress+cmdOffLINK)) << 3) &^ 0x1F
	case jumpReturn:
		// Return only returns if there was a previous call
		if v.regs1.returnAddress != kVDP1NoReturn {
			v.regs1.currCommandAddress = v.regs1.returnAddress
			v.regs1.returnAddress = kVDP1NoReturn
		} else {
			v.regs1.currCommandAddress += 0x20
		}
	}
	v.regs1.currCommandAddress &= 0x7FFFF

	return cycles
}

// vdp1CalcCommandTiming produces the coarse cycle estimate for a drawing
// command. The numbers are rough but keep command lists paced well enough
// for titles that race the beam.
func (v *VDP) vdp1CalcCommandTiming(cmdAddress uint32, control vdp1Control) uint64 {
	readCoord := func(off uint32) (int32, int32) {
		x := signExtend13(v.vdp1Read16(cmdAddress + off))
		y := signExtend13(v.vdp1Read16(cmdAddress + off + 2))
		return x, y
	}

	lineTiming := func(x0, y0, x1, y1 int32) uint64 {
		w := absInt32(x1 - x0)
		h := absInt32(y1 - y0)
		return uint64(maxInt32(w, h))
	}

	switch control.command {
	case cmdDrawNormalSprite:
		size := v.vdp1Read16(cmdAddress + cmdOffSIZE)
		w := uint64((size>>8)&0x3F) * 8
		h := uint64(size & 0xFF)
		return maxUint64(w, 1) * maxUint64(h, 1)

	case cmdDrawScaledSprite:
		var width, height int32
		if control.zoomPoint&3 == 0 {
			xa, _ := readCoord(cmdOffXA)
			xc, _ := readCoord(cmdOffXC)
			width = absInt32(xc - xa)
		} else {
			xb, _ := readCoord(cmdOffXB)
			width = absInt32(xb)
		}
		if (control.zoomPoint>>2)&3 == 0 {
			_, ya := readCoord(cmdOffXA)
			_, yc := readCoord(cmdOffXC)
			height = absInt32(yc - ya)
		} else {
			_, yb := readCoord(cmdOffXB)
			height = absInt32(yb)
		}
		return uint64(width) * uint64(height)

	case cmdDrawDistortedSprite, cmdDrawDistortedAlt, cmdDrawPolygon:
		xa, ya := readCoord(cmdOffXA)
		xb, yb := readCoord(cmdOffXB)
		xc, yc := readCoord(cmdOffXC)
		xd, yd := readCoord(cmdOffXD)
		var cycles uint64
		quad := newQuadStepper(coord{xa, ya}, coord{xb, yb}, coord{xc, yc}, coord{xd, yd})
		for quad.CanStep() {
			l := quad.LeftCoord()
			r := quad.RightCoord()
			cycles += uint64(absInt32(r.x - l.x))
			quad.Step()
		}
		return cycles

	case cmdDrawPolylines, cmdDrawPolylinesAlt:
		xa, ya := readCoord(cmdOffXA)
		xb, yb := readCoord(cmdOffXB)
		xc, yc := readCoord(cmdOffXC)
		xd, yd := readCoord(cmdOffXD)
		return lineTiming(xa, ya, xb, yb) + lineTiming(xb, yb, xc, yc) +
			lineTiming(xc, yc, xd, yd) + lineTiming(xd, yd, xa, ya)

	case cmdSetUserClipping, cmdSetUserClippingAlt, cmdSetSystemClipping, cmdSetLocalCoordinates:
		// Setup commands cost only the fetch overhead

	case cmdDrawLine:
		xa, ya := readCoord(cmdOffXA)
		xb, yb := readCoord(cmdOffXB)
		return lineTiming(xa, ya, xb, yb)
	}
	return 0
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
