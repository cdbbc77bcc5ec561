package emu

import "encoding/binary"

// Host bus decode. The VDP occupies 0x5C00000-0x5FBFFFF on the Saturn B-bus:
//
//	0x5C00000-0x5C7FFFF  VDP1 VRAM
//	0x5C80000-0x5CFFFFF  VDP1 framebuffer (display side reads, draw side writes)
//	0x5D00000-0x5D7FFFF  VDP1 registers
//	0x5E00000-0x5EFFFFF  VDP2 VRAM
//	0x5F00000-0x5F7FFFF  VDP2 CRAM
//	0x5F80000-0x5FBFFFF  VDP2 registers
//
// All word data is big-endian as seen from the SH-2 bus.
const (
	busVDP1VRAM = 0xB8
	busVDP1FB   = 0xB9
	busVDP1Regs = 0xBA
	busVDP2VRAM0 = 0xBC
	busVDP2VRAM1 = 0xBD
	busCRAM     = 0xBE
	busVDP2Regs = 0xBF
)

func busRegion(address uint32) uint32 {
	return (address >> 19) & 0xFF
}

// Read8 performs an 8-bit host bus read.
func (v *VDP) Read8(address uint32) uint8 {
	switch busRegion(address) {
	case busVDP1VRAM:
		return v.mem.vram1[address&(VDP1VRAMSize-1)]
	case busVDP1FB:
		return v.renderer.spriteFB[v.regs1.displayFB][address&(VDP1FBSize-1)]
	case busVDP1Regs:
		word := v.regs1.Read16(address)
		if address&1 == 0 {
			return uint8(word >> 8)
		}
		return uint8(word)
	case busVDP2VRAM0, busVDP2VRAM1:
		return v.mem.vram2[address&(VDP2VRAMSize-1)]
	case busCRAM:
		return v.mem.cram[address&(CRAMSize-1)]
	case busVDP2Regs:
		word := v.regs2.Read16(address)
		if address&1 == 0 {
			return uint8(word >> 8)
		}
		return uint8(word)
	}
	return 0
}

// Read16 performs a 16-bit host bus read.
func (v *VDP) Read16(address uint32) uint16 {
	address &^= 1
	switch busRegion(address) {
	case busVDP1VRAM:
		return binary.BigEndian.Uint16(v.mem.vram1[address&(VDP1VRAMSize-1):])
	case busVDP1FB:
		return binary.BigEndian.Uint16(v.renderer.spriteFB[v.regs1.displayFB][address&(VDP1FBSize-1):])
	case busVDP1Regs:
		return v.regs1.Read16(address)
	case busVDP2VRAM0, busVDP2VRAM1:
		return binary.BigEndian.Uint16(v.mem.vram2[address&(VDP2VRAMSize-1):])
	case busCRAM:
		return binary.BigEndian.Uint16(v.mem.cram[address&(CRAMSize-1):])
	case busVDP2Regs:
		return v.regs2.Read16(address)
	}
	return 0
}

// Read32 performs a 32-bit host bus read as two 16-bit reads.
func (v *VDP) Read32(address uint32) uint32 {
	address &^= 3
	return uint32(v.Read16(address))<<16 | uint32(v.Read16(address+2))
}

// Write8 performs an 8-bit host bus write.
func (v *VDP) Write8(address uint32, value uint8) {
	switch busRegion(address) {
	case busVDP1VRAM:
		v.mem.vram1[address&(VDP1VRAMSize-1)] = value
		v.vdp1VRAMWritePenalty()
		v.renderer.postVDP1VRAMWrite8(address, value)
	case busVDP1FB:
		v.renderer.spriteFB[v.regs1.displayFB^1][address&(VDP1FBSize-1)] = value
	case busVDP1Regs:
		// 8-bit register writes behave as read-modify-write on the pair.
		// The erase registers read back zero, so they merge with their
		// stored values; TVMR, FBCR and PTMR merge with zero.
		word := v.regs1.Read16(address)
		switch address & 0x1E {
		case 0x06: // EWDR
			word = v.regs1.eraseWriteValue
		case 0x08: // EWLR
			word = (v.regs1.eraseX1>>3)<<9 | v.regs1.eraseY1
		case 0x0A: // EWRR
			word = (v.regs1.eraseX3>>3)<<9 | v.regs1.eraseY3
		}
		if address&1 == 0 {
			word = (word & 0x00FF) | uint16(value)<<8
		} else {
			word = (word & 0xFF00) | uint16(value)
		}
		v.writeVDP1Reg(address, word)
	case busVDP2VRAM0, busVDP2VRAM1:
		v.mem.vram2[address&(VDP2VRAMSize-1)] = value
		v.renderer.postVDP2VRAMWrite8(address, value)
	case busCRAM:
		v.mem.cram[address&(CRAMSize-1)] = value
		if v.regs2.cramMode != 2 {
			v.mem.cramCacheUpdate(address &^ 1)
		}
		v.renderer.postVDP2CRAMWrite8(address, value)
	case busVDP2Regs:
		// 8-bit VDP2 register access is illegal and ignored
	}
}

// Write16 performs a 16-bit host bus write.
func (v *VDP) Write16(address uint32, value uint16) {
	address &^= 1
	switch busRegion(address) {
	case busVDP1VRAM:
		binary.BigEndian.PutUint16(v.mem.vram1[address&(VDP1VRAMSize-1):], value)
		v.vdp1VRAMWritePenalty()
		v.renderer.postVDP1VRAMWrite16(address, value)
	case busVDP1FB:
		binary.BigEndian.PutUint16(v.renderer.spriteFB[v.regs1.displayFB^1][address&(VDP1FBSize-1):], value)
	case busVDP1Regs:
		v.writeVDP1Reg(address, value)
	case busVDP2VRAM0, busVDP2VRAM1:
		binary.BigEndian.PutUint16(v.mem.vram2[address&(VDP2VRAMSize-1):], value)
		v.renderer.postVDP2VRAMWrite16(address, value)
	case busCRAM:
		binary.BigEndian.PutUint16(v.mem.cram[address&(CRAMSize-1):], value)
		if v.regs2.cramMode != 2 {
			v.mem.cramCacheUpdate(address)
		}
		v.renderer.postVDP2CRAMWrite16(address, value)
	case busVDP2Regs:
		v.writeVDP2Reg(address, value)
	}
}

// Write32 performs a 32-bit host bus write as two 16-bit writes.
func (v *VDP) Write32(address uint32, value uint32) {
	address &^= 3
	v.Write16(address, uint16(value>>16))
	v.Write16(address+2, uint16(value))
}

// vdp1VRAMWritePenalty charges the stall the VDP1 suffers when the CPU
// writes VRAM mid-draw.
func (v *VDP) vdp1VRAMWritePenalty() {
	if v.vdp1.drawing {
		v.vdp1.timingPenaltyCycles += 30
	}
}

// writeVDP1Reg handles a decoded VDP1 register write, including the
// side-effectful registers the bank itself cannot act on.
func (v *VDP) writeVDP1Reg(address uint32, value uint16) {
	switch address & 0x1E {
	case 0x04: // PTMR
		v.regs1.Write16(address, value)
		if value&3 == 1 {
			// Plot trigger: start processing immediately with the
			// first-command setup delay
			v.vdp1BeginFrame()
			v.vdp1.timingPenaltyCycles += 1500
		}
	case 0x0C: // ENDR: force-terminate drawing
		if v.vdp1.drawing {
			v.vdp1EndFrame()
		}
	default:
		v.regs1.Write16(address, value)
	}
	v.renderer.postVDP1RegWrite(address, value)
}

// writeVDP2Reg handles a decoded VDP2 register write plus the cache and
// renderer refreshes that hang off specific registers.
func (v *VDP) writeVDP2Reg(address uint32, value uint16) {
	prevMode := v.regs2.cramMode
	v.regs2.Write16(address, value)
	if v.regs2.cramMode != prevMode && v.regs2.cramMode != 2 {
		v.mem.cramCacheRebuild()
	}
	v.renderer.postVDP2RegWrite(address, value)
}

// ExternalLatch is called by the SMPC when EXTEN.EXLTEN is set: light-gun
// style latching of the beam counters at a screen position.
func (v *VDP) ExternalLatch(x, y uint32) {
	if !v.regs2.exlten {
		return
	}
	// HCNT is stored pre-shifted; the bus read applies << 1
	v.regs2.hcnt = (x + 64) << 1
	v.regs2.vcnt = y + 16
	if x < v.hres && y < v.vres {
		v.regs2.exltfg = true
	}
}
