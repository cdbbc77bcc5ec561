package emu

import "encoding/binary"

// rotationParamTable is one of the two 0x80-byte rotation parameter tables,
// fetched from VDP2 VRAM.
type rotationParamTable struct {
	Xst, Yst, Zst   int64 // s13.10
	dXst, dYst      int64 // s3.10 per line
	dX, dY          int64 // s3.10 per dot
	A, B, C, D, E, F int64 // s4.10 matrix
	Px, Py, Pz      int64
	Cx, Cy, Cz      int64
	Mx, My          int64 // s13.10
	kx, ky          int64 // s7.16
	KAst            uint32 // u16.10
	dKAst           int32  // s16.10 per line
	dKAx            int32  // s16.10 per dot
}

func (r *Renderer) vdp2Read16(address uint32) uint16 {
	return binary.BigEndian.Uint16(r.mem.vram2[address&(VDP2VRAMSize-2):])
}

func (r *Renderer) vdp2Read32(address uint32) uint32 {
	return binary.BigEndian.Uint32(r.mem.vram2[address&(VDP2VRAMSize-4):])
}

func signExtend(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

// fetchRotationParamTable reads one parameter table from VRAM.
func (r *Renderer) fetchRotationParamTable(base uint32) rotationParamTable {
	rd32 := func(off uint32) uint32 { return r.vdp2Read32(base + off) }
	rd16 := func(off uint32) uint16 { return r.vdp2Read16(base + off) }

	// The table stores fixed point values with 6 dead low bits; extract
	// as signed with 10 fractional bits.
	var t rotationParamTable
	fix1310 := func(off uint32) int64 { return signExtend(rd32(off)&0x1FFFFFC0, 29) >> 6 }
	fix710 := func(off uint32) int64 { return signExtend(rd32(off)&0x0007FFC0, 19) >> 6 }
	t.Xst = fix1310(0x00)
	t.Yst = fix1310(0x04)
	t.Zst = fix1310(0x08)
	t.dXst = fix710(0x0C)
	t.dYst = fix710(0x10)
	t.dX = fix710(0x14)
	t.dY = fix710(0x18)
	t.A = signExtend(rd32(0x1C)&0x000FFFC0, 20) >> 6
	t.B = signExtend(rd32(0x20)&0x000FFFC0, 20) >> 6
	t.C = signExtend(rd32(0x24)&0x000FFFC0, 20) >> 6
	t.D = signExtend(rd32(0x28)&0x000FFFC0, 20) >> 6
	t.E = signExtend(rd32(0x2C)&0x000FFFC0, 20) >> 6
	t.F = signExtend(rd32(0x30)&0x000FFFC0, 20) >> 6
	t.Px = int64(signExtend13(rd16(0x34))) << 10
	t.Py = int64(signExtend13(rd16(0x36))) << 10
	t.Pz = int64(signExtend13(rd16(0x38))) << 10
	t.Cx = int64(signExtend13(rd16(0x3C))) << 10
	t.Cy = int64(signExtend13(rd16(0x3E))) << 10
	t.Cz = int64(signExtend13(rd16(0x40))) << 10
	t.Mx = fix1310(0x44)
	t.My = fix1310(0x48)
	t.kx = signExtend(rd32(0x4C)&0x00FFFFFF, 24) // s7.16
	t.ky = signExtend(rd32(0x50)&0x00FFFFFF, 24)
	t.KAst = (rd32(0x54) & 0xFFFFFFC0) >> 6 // u16.10
	t.dKAst = int32(signExtend(rd32(0x58)>>6, 26))
	t.dKAx = int32(signExtend(rd32(0x5C)>>6, 26))
	return t
}

// beginFrame resets the per-frame renderer state at VBlank OUT.
func (r *Renderer) beginFrame() {
	for f := 0; f < 2; f++ {
		for i := 0; i < 4; i++ {
			bg := &r.regs2.bgParams[i]
			st := &r.normBG[f][i]
			st.fracScrollX = bg.scrollAmountH
			st.fracScrollY = bg.scrollAmountV
			st.scrollIncH = bg.scrollIncH
			if st.scrollIncH == 0 {
				st.scrollIncH = 0x100
			}
			st.lineScrollTableAddress = bg.lineScrollTableAddress
			st.mosaicCounterY = 0
		}
		for bg := range r.fetchers[f] {
			r.fetchers[f][bg].reset()
		}
	}
	if r.regs2.cyclePatternsDirty {
		r.analyzeAccessPatterns()
		r.regs2.cyclePatternsDirty = false
	}
}

// endFrame hands the finished frame to the host.
func (r *Renderer) endFrame() {
	h, v := r.hres, r.vres
	if h == 0 || v == 0 {
		return
	}
	if r.cb.FrameComplete != nil {
		r.cb.FrameComplete(r.framebuffer[:h*v], h, v)
	}
	if r.cb.VDP2DrawFinished != nil {
		r.cb.VDP2DrawFinished()
	}
}

// renderLine renders one scanline of the current field and, when
// deinterlacing a double-density frame, the matching alternate-field line in
// parallel on the deinterlace worker.
func (r *Renderer) renderLine(y uint32) {
	if y >= r.vresField() {
		return
	}

	// Rederive the access permissions before any field work forks off to
	// the deinterlace worker
	if r.regs2.cyclePatternsDirty {
		r.analyzeAccessPatterns()
		r.regs2.cyclePatternsDirty = false
	}

	deint := r.cfg.Deinterlace && r.regs2.latchedInterlaceMode == InterlaceDouble

	if deint && r.deinterlaceBegin != nil {
		r.deinterlaceBegin <- y
		r.renderFieldLine(y, false)
		<-r.deinterlaceEnd
	} else {
		r.renderFieldLine(y, false)
		if deint {
			r.renderAltFieldLine(y)
		}
	}

	r.composeLine(y, deint)
}

// renderAltFieldLine draws the alternate interlace field for scanline y.
func (r *Renderer) renderAltFieldLine(y uint32) {
	r.renderFieldLine(y, true)
}

// vresField is the line count of one field.
func (r *Renderer) vresField() uint32 {
	if r.regs2.IsInterlaced() && r.vres > 0 {
		return r.vres / 2
	}
	return r.vres
}

// renderFieldLine prepares and draws every enabled layer for one line of
// one field.
func (r *Renderer) renderFieldLine(y uint32, altField bool) {
	r.prepareLine(y, altField)

	f := boolIndex(altField)
	for l := 0; l < numLayers; l++ {
		r.layers[f][l].reset()
	}

	r.drawSpriteLayer(y, altField)

	if r.regs2.bgEnabled[bgRBG0] {
		r.drawRotationBG(y, altField, 0)
	}
	if r.regs2.bgEnabled[bgRBG1] {
		r.drawRotationBG(y, altField, 1)
	}
	if r.regs2.bgEnabled[bgNBG0] {
		r.drawScrollBG(y, altField, bgNBG0)
	}
	if r.regs2.bgEnabled[bgNBG1] {
		r.drawScrollBG(y, altField, bgNBG1)
	}
	if r.regs2.bgEnabled[bgNBG2] {
		r.drawScrollBG(y, altField, bgNBG2)
	}
	if r.regs2.bgEnabled[bgNBG3] {
		r.drawScrollBG(y, altField, bgNBG3)
	}
}

// fieldY maps a field-relative line to the full-frame vertical coordinate
// used for scroll math.
func (r *Renderer) fieldY(y uint32, altField bool) uint32 {
	if r.regs2.latchedInterlaceMode == InterlaceDouble {
		field := uint32(0)
		if r.odd != altField {
			field = 1
		}
		return y<<1 | field
	}
	return y
}

// prepareLine runs the per-line setup: rotation parameter accumulation and per-column precomputation, line/back colors and
// line scroll updates.
func (r *Renderer) prepareLine(y uint32, altField bool) {
	f := boolIndex(altField)
	line := &r.line[f]

	// Rotation parameters
	if r.regs2.anyRotationEnabled() {
		r.prepareRotationParams(y, altField)
	}

	// Line color and back screen colors
	if y == 0 || r.regs2.lineColorPerLine {
		addr := r.regs2.lineColorTableAddress
		if r.regs2.lineColorPerLine {
			addr += r.fieldY(y, altField) * 2
		}
		line.lineColor = r.mem.cramColor(r.regs2.cramMode, uint32(r.vdp2Read16(addr)&0x7FF))
	}
	if y == 0 || r.regs2.backPerLine {
		addr := r.regs2.backTableAddress
		if r.regs2.backPerLine {
			addr += r.fieldY(y, altField) * 2
		}
		line.backColor = color555to888(r.vdp2Read16(addr))
	}

	// Line scroll for NBG0 and NBG1
	for i := 0; i < 2; i++ {
		bg := &r.regs2.bgParams[i]
		if !r.regs2.bgEnabled[i] {
			continue
		}
		st := &r.normBG[f][i]
		interval := bg.lineScrollInterval
		if interval == 0 {
			interval = 1
		}
		if y != 0 && y%interval != 0 {
			continue
		}
		doubleDensity := r.regs2.latchedInterlaceMode == InterlaceDouble
		reads := 1
		if doubleDensity && y != 0 {
			// Double-density consumes both fields' entries
			reads = 2
		}
		for n := 0; n < reads; n++ {
			if bg.lineScrollXEnable {
				w := r.vdp2Read32(st.lineScrollTableAddress)
				st.fracScrollX = bg.scrollAmountH + ((w >> 8) & 0x7FFFF)
				st.lineScrollTableAddress += 4
			}
			if bg.lineScrollYEnable {
				w := r.vdp2Read32(st.lineScrollTableAddress)
				st.fracScrollY = bg.scrollAmountV + ((w >> 8) & 0x7FFFF)
				st.lineScrollTableAddress += 4
			}
			if bg.lineZoomEnable {
				w := r.vdp2Read32(st.lineScrollTableAddress)
				st.scrollIncH = (w >> 8) & 0x7FF
				st.lineScrollTableAddress += 4
			}
		}
	}

	// Reset the VRAM fetcher caches for the new line
	for bg := range r.fetchers[f] {
		fet := &r.fetchers[f][bg]
		fet.lastCharIndex = 0xFFFFFFFF
		fet.lastCellX = 0xFFFFFFFF
		fet.bitmapDataAddress = 0xFFFFFFFF
		fet.lastVCellScroll = 0xFFFFFFFF
	}
}

// prepareRotationParams fetches or accumulates both rotation parameter
// tables and precomputes the per-column screen coordinates, coefficient
// transparency and line colors.
func (r *Renderer) prepareRotationParams(y uint32, altField bool) {
	f := boolIndex(altField)
	base := r.regs2.commonRotParams.rotParamTableBase

	for p := 0; p < 2; p++ {
		rp := &r.regs2.rotParams[p]
		st := &r.rotState[f][p]

		if y == 0 {
			st.tbl = r.fetchRotationParamTable(base + uint32(p)*0x80)
			st.Xst = st.tbl.Xst
			st.Yst = st.tbl.Yst
			st.KA = st.tbl.KAst
		} else {
			// Re-read the base registers when requested, otherwise
			// accumulate the per-line deltas
			tbl := r.fetchRotationParamTable(base + uint32(p)*0x80)
			if rp.readXst {
				st.tbl.Xst = tbl.Xst
				st.Xst = tbl.Xst + st.tbl.dXst*int64(y)
			}
			if rp.readYst {
				st.tbl.Yst = tbl.Yst
				st.Yst = tbl.Yst + st.tbl.dYst*int64(y)
			}
			if rp.readKAst {
				st.tbl.KAst = tbl.KAst
				st.KA = tbl.KAst + uint32(int64(st.tbl.dKAst)*int64(y))
			} else {
				st.KA += uint32(st.tbl.dKAst)
			}
			if !rp.readXst {
				st.Xst += st.tbl.dXst
			}
			if !rp.readYst {
				st.Yst += st.tbl.dYst
			}
		}

		r.precomputeRotationColumns(y, altField, p)
	}
}

// precomputeRotationColumns applies the screen transform for every output
// column of one rotation parameter.
func (r *Renderer) precomputeRotationColumns(y uint32, altField bool, p int) {
	f := boolIndex(altField)
	line := &r.line[f]
	st := &r.rotState[f][p]
	rp := &r.regs2.rotParams[p]
	t := &st.tbl

	// Constant per-line terms of the transform, all kept in s.10 fixed
	// point (matrix products are rescaled after each multiply)
	xsp := (t.A*(st.Xst-t.Px) + t.B*(st.Yst-t.Py) + t.C*(t.Zst-t.Pz)) >> 10
	ysp := (t.D*(st.Xst-t.Px) + t.E*(st.Yst-t.Py) + t.F*(t.Zst-t.Pz)) >> 10
	xp := (t.A*(t.Px-t.Cx)+t.B*(t.Py-t.Cy)+t.C*(t.Pz-t.Cz))>>10 + t.Cx + t.Mx
	yp := (t.D*(t.Px-t.Cx)+t.E*(t.Py-t.Cy)+t.F*(t.Pz-t.Cz))>>10 + t.Cy + t.My

	// Per-dot screen deltas
	dXsp := (t.A*t.dX + t.B*t.dY) >> 10
	dYsp := (t.D*t.dX + t.E*t.dY) >> 10

	kx := t.kx
	ky := t.ky

	maxX := r.hres
	perDotCoeff := rp.coeffTableEnable

	ka := st.KA
	for x := uint32(0); x < maxX; x++ {
		ckx, cky := kx, ky
		transparent := false
		var lineColorData uint32

		if perDotCoeff {
			coeff, lineColor, transp := r.readCoefficient(rp, ka)
			transparent = transp
			lineColorData = lineColor
			switch rp.coeffMode {
			case 0:
				ckx = coeff
				cky = coeff
			case 1:
				ckx = coeff
			case 2:
				cky = coeff
			case 3:
				// The coefficient is not applied in this mode; the X
				// scale stays kx
				ckx = kx
			}
			ka += uint32(t.dKAx)
		}

		sx := (ckx*(xsp+dXsp*int64(x)))>>16 + xp
		sy := (cky*(ysp+dYsp*int64(x)))>>16 + yp

		line.rotScrollX[p][x] = int32(sx >> 10)
		line.rotScrollY[p][x] = int32(sy >> 10)
		line.rotTransparent[p][x] = transparent
		if rp.coeffUseLineColor {
			line.rotLineColor[p][x] = r.mem.cramColor(r.regs2.cramMode, lineColorData&0x7F|0x780)
		}

		if p == 0 && r.regs1.fbRotEnable {
			line.spriteCoordX[x] = int32(sx >> 10)
			line.spriteCoordY[x] = int32(sy >> 10)
		}
	}
}

// readCoefficient fetches one coefficient table entry at the given 16.10
// table address.
func (r *Renderer) readCoefficient(rp *RotationParams, ka uint32) (coeff int64, lineColor uint32, transparent bool) {
	index := ka >> 10
	if rp.coeffDataSize == 2 {
		address := rp.coeffTableAddressOffset + index*2
		var raw uint16
		if r.regs2.cramCoeffEnable {
			raw = binary.BigEndian.Uint16(r.mem.cram[(address+0x800)&(CRAMSize-2):])
		} else {
			raw = r.vdp2Read16(address)
		}
		transparent = raw&0x8000 != 0
		// s5.10 expanded to s7.16
		coeff = signExtend(uint32(raw), 15) << 6
		return coeff, 0, transparent
	}

	address := rp.coeffTableAddressOffset + index*4
	var raw uint32
	if r.regs2.cramCoeffEnable {
		raw = binary.BigEndian.Uint32(r.mem.cram[(address+0x800)&(CRAMSize-4):])
	} else {
		raw = r.vdp2Read32(address)
	}
	transparent = raw&0x80000000 != 0
	lineColor = (raw >> 24) & 0x7F
	// s13.10 expanded to s7.16
	coeff = signExtend(raw&0x00FFFFFF, 24) << 6
	return coeff, lineColor, transparent
}

// ---------------------------------------------------------------------------
// VRAM access pattern analysis

// bankForAddress maps a VDP2 VRAM address to its bank (A0, A1, B0, B1),
// honoring the partition bits.
func (r *Renderer) bankForAddress(address uint32) int {
	bank := int((address >> 17) & 3)
	if !r.regs2.vramPartitionA && bank == 1 {
		bank = 0
	}
	if !r.regs2.vramPartitionB && bank == 3 {
		bank = 2
	}
	return bank
}

// analyzeAccessPatterns derives per-bank pattern-name and character-pattern
// read permissions plus the timing-induced fetch delays from the cycle
// pattern registers. Only the rules that visibly affect commercial titles
// are modeled; unknown patterns degrade to transparent tiles, never to a
// failure.
func (r *Renderer) analyzeAccessPatterns() {
	// Start the NBGs from no access and no delay; the passes below grant
	// permissions and derive delays from the cycle patterns
	for i := 0; i < 4; i++ {
		bg := &r.regs2.bgParams[i]
		bg.patNameAccess = [4]bool{}
		bg.charPatAccess = [4]bool{}
		bg.bitmapDelay = [4]bool{}
		bg.charPatDelay = false
	}

	hiRes := r.regs2.hresOn&6 != 0

	for bank := 0; bank < 4; bank++ {
		effBank := bank
		if !r.regs2.vramPartitionA && bank == 1 {
			effBank = 0
		}
		if !r.regs2.vramPartitionB && bank == 3 {
			effBank = 2
		}
		for slot := 0; slot < 8; slot++ {
			// In hi-res modes only the first four slots exist
			if hiRes && slot >= 4 {
				break
			}
			pat := r.regs2.cyclePatterns[effBank][slot]
			switch {
			case pat <= cycPatNameNBG3:
				bg := &r.regs2.bgParams[pat]
				bg.patNameAccess[bank] = true
			case pat >= cycCharPatNBG0 && pat <= cycCharPatNBG3:
				bg := &r.regs2.bgParams[pat-cycCharPatNBG0]
				bg.charPatAccess[bank] = true
			case pat == cycCPU && r.cfg.BitmapCycleSlotRelaxed:
				// Several titles use CPU slots for bitmap data reads;
				// accept them as character pattern slots for bitmaps
				for i := 0; i < 2; i++ {
					bg := &r.regs2.bgParams[i]
					if bg.bitmap {
						bg.charPatAccess[bank] = true
					}
				}
			}
		}
	}

	// Rotation BGs read through the rotation data bank selectors instead
	// of the cycle patterns. With no bank designated for a class at all,
	// every bank is allowed; RBG-heavy titles that skip RAMCTL setup
	// still render.
	for _, i := range []int{bgRBG0, bgRBG1} {
		bg := &r.regs2.bgParams[i]
		anyPN, anyCP := false, false
		for bank := 0; bank < 4; bank++ {
			sel := r.regs2.rotDataBankSel[bank]
			bg.patNameAccess[bank] = sel == 2
			bg.charPatAccess[bank] = sel == 3
			anyPN = anyPN || sel == 2
			anyCP = anyCP || sel == 3
		}
		if !anyPN {
			bg.patNameAccess = [4]bool{true, true, true, true}
		}
		if !anyCP {
			bg.charPatAccess = [4]bool{true, true, true, true}
		}
	}

	// Character pattern delay: a CP access timed before the corresponding
	// PN access cannot use the freshly fetched name, so the drawn
	// character lags one tile behind.
	for i := 0; i < 4; i++ {
		bg := &r.regs2.bgParams[i]
		if bg.bitmap {
			continue
		}
		for bank := 0; bank < 4; bank++ {
			pnSlot, cpSlot := -1, -1
			effBank := bank
			if !r.regs2.vramPartitionA && bank == 1 {
				effBank = 0
			}
			if !r.regs2.vramPartitionB && bank == 3 {
				effBank = 2
			}
			for slot := 0; slot < 8; slot++ {
				pat := r.regs2.cyclePatterns[effBank][slot]
				if int(pat) == i && pnSlot < 0 {
					pnSlot = slot
				}
				if int(pat) == i+cycCharPatNBG0 && cpSlot < 0 {
					cpSlot = slot
				}
			}
			if pnSlot >= 0 && cpSlot >= 0 && cpSlot < pnSlot {
				bg.charPatDelay = true
			}
		}
	}

	// Bitmap data offsets: when the same NBG's bitmap reads straddle the
	// A and B chips, the second chip's data is fetched 8 bytes late.
	applyBitmapDelay := hiRes || r.cfg.BitmapDelayNonHiRes
	if applyBitmapDelay {
		for i := 0; i < 2; i++ {
			bg := &r.regs2.bgParams[i]
			if !bg.bitmap {
				continue
			}
			chipA := bg.charPatAccess[0] || bg.charPatAccess[1]
			chipB := bg.charPatAccess[2] || bg.charPatAccess[3]
			if chipA && chipB {
				bg.bitmapDelay[2] = true
				bg.bitmapDelay[3] = true
			}
		}
	}

	// Vertical cell scroll derivation for NBG0 and NBG1: table offsets are
	// assigned 4 bytes apart in BG order (NBG0 first) among the BGs with
	// vertical cell scroll on; a VCST access after the BG's CP access
	// delays the read by one slot.
	offset := uint32(0)
	for i := 0; i < 2; i++ {
		bg := &r.regs2.bgParams[i]
		if !bg.vertCellScrollEnable || !r.regs2.bgEnabled[i] {
			continue
		}
		st0 := &r.normBG[0][i]
		st1 := &r.normBG[1][i]
		st0.vertCellScrollOffset = offset
		st1.vertCellScrollOffset = offset
		delay := false
		for bank := 0; bank < 4; bank++ {
			vcSlot, cpSlot := -1, -1
			for slot := 0; slot < 8; slot++ {
				pat := r.regs2.cyclePatterns[bank][slot]
				if int(pat) == cycVCellNBG0+i && vcSlot < 0 {
					vcSlot = slot
				}
				if int(pat) == cycCharPatNBG0+i && cpSlot < 0 {
					cpSlot = slot
				}
			}
			if vcSlot >= 0 && cpSlot >= 0 && vcSlot > cpSlot {
				delay = true
			}
		}
		st0.vertCellScrollDelay = delay
		st1.vertCellScrollDelay = delay
		st0.vertCellScrollRepeat = i == 0 && delay
		st1.vertCellScrollRepeat = st0.vertCellScrollRepeat
		offset += 4
	}
}

// ---------------------------------------------------------------------------
// Windows

// calcWindowInto fills out[0:hres] with "inside window" per the window set.
// The sprite window term consults the sprite layer's shadow-or-window
// attribute of the same field.
func (r *Renderer) calcWindowInto(y uint32, ws *WindowSet, altField bool, out []bool) {
	hres := r.hres
	f := boolIndex(altField)

	if !ws.anyEnabled() {
		for x := uint32(0); x < hres; x++ {
			out[x] = false
		}
		return
	}

	and := !ws.logicOR
	init := and
	for x := uint32(0); x < hres; x++ {
		out[x] = init
	}

	fy := r.fieldY(y, altField)

	for w := 0; w < 2; w++ {
		if !ws.enabled[w] {
			continue
		}
		wp := &r.regs2.windowParams[w]
		inverted := ws.inverted[w]

		inVRange := fy >= uint32(wp.startY) && fy <= uint32(wp.endY)

		x1 := uint32(wp.startX)
		x2 := uint32(wp.endX)
		if wp.lineWindowEnable {
			addr := wp.lineWindowTableAddress + fy*4
			x1 = uint32(r.vdp2Read16(addr) & 0x3FF)
			x2 = uint32(r.vdp2Read16(addr+2) & 0x3FF)
		}
		// Negative line-window coordinates mark disabled lines
		if x1&0x200 != 0 && x1 > x2 {
			inVRange = false
		}
		if r.regs2.hresOn&2 == 0 {
			// Normal resolutions encode X coordinates doubled
			x1 >>= 1
			x2 >>= 1
		}

		for x := uint32(0); x < hres; x++ {
			inside := inVRange && x >= x1 && x <= x2
			term := inside != inverted
			if and {
				out[x] = out[x] && term
			} else {
				out[x] = out[x] || term
			}
		}
	}

	if ws.spriteWindowEnabled {
		sw := &r.spriteExtra[f]
		for x := uint32(0); x < hres; x++ {
			term := sw.shadowOrWindow[x] != ws.spriteWindowInverted
			if and {
				out[x] = out[x] && term
			} else {
				out[x] = out[x] || term
			}
		}
	}
}
