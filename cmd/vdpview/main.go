// vdpview drives the VDP core with a built-in test scene and displays the
// composed output. Useful for eyeballing renderer changes without a full
// machine emulation around the VDP.
package main

import (
	"flag"
	"image"
	"image/png"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/user-none/esaturn/emu"
)

// loopScheduler is a minimal host scheduler: it simply remembers the phase
// handler and lets the frame loop pump it.
type loopScheduler struct {
	handler func() uint64
}

func (s *loopScheduler) RegisterEvent(name string, handler func() uint64) {
	s.handler = handler
}

type viewer struct {
	vdp   *emu.VDP
	sched *loopScheduler

	frame       []uint32
	frameW      uint32
	frameH      uint32
	frameReady  bool
	pixelBuf    []byte
	offscreen   *ebiten.Image
	drawOpts    ebiten.DrawImageOptions
}

func newViewer(cfg emu.Config) (*viewer, error) {
	v := &viewer{sched: &loopScheduler{}}

	cb := emu.Callbacks{
		FrameComplete: func(fb []uint32, w, h uint32) {
			if uint32(len(v.frame)) != w*h {
				v.frame = make([]uint32, w*h)
			}
			copy(v.frame, fb)
			v.frameW, v.frameH = w, h
			v.frameReady = true
		},
	}

	vdp, err := emu.NewVDP(cfg, v.sched, cb)
	if err != nil {
		return nil, err
	}
	v.vdp = vdp
	setupTestScene(vdp)
	return v, nil
}

// runFrame pumps phase events until the VDP delivers a frame.
func (v *viewer) runFrame() {
	v.frameReady = false
	for i := 0; i < 1000000 && !v.frameReady; i++ {
		cycles := v.sched.handler()
		v.vdp.Advance(cycles)
	}
}

func (v *viewer) Update() error {
	v.runFrame()
	return nil
}

func (v *viewer) Draw(screen *ebiten.Image) {
	if v.frameW == 0 || v.frameH == 0 {
		return
	}
	w, h := int(v.frameW), int(v.frameH)

	if v.offscreen == nil || v.offscreen.Bounds().Dx() != w || v.offscreen.Bounds().Dy() != h {
		v.offscreen = ebiten.NewImage(w, h)
		v.pixelBuf = make([]byte, w*h*4)
	}

	for i, px := range v.frame[:w*h] {
		v.pixelBuf[i*4+0] = byte(px)
		v.pixelBuf[i*4+1] = byte(px >> 8)
		v.pixelBuf[i*4+2] = byte(px >> 16)
		v.pixelBuf[i*4+3] = 0xFF
	}
	v.offscreen.WritePixels(v.pixelBuf)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scaleX := float64(sw) / float64(w)
	scaleY := float64(sh) / float64(h)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	v.drawOpts = ebiten.DrawImageOptions{}
	v.drawOpts.GeoM.Scale(scale, scale)
	v.drawOpts.GeoM.Translate((float64(sw)-float64(w)*scale)/2, (float64(sh)-float64(h)*scale)/2)
	v.drawOpts.Filter = ebiten.FilterNearest
	screen.DrawImage(v.offscreen, &v.drawOpts)
}

func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// writeScreenshot renders a number of frames headless and writes the last
// one as a 2x nearest-neighbour scaled PNG.
func (v *viewer) writeScreenshot(path string, frames int) error {
	for i := 0; i < frames; i++ {
		v.runFrame()
	}
	w, h := int(v.frameW), int(v.frameH)
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, px := range v.frame[:w*h] {
		src.Pix[i*4+0] = byte(px)
		src.Pix[i*4+1] = byte(px >> 8)
		src.Pix[i*4+2] = byte(px >> 16)
		src.Pix[i*4+3] = 0xFF
	}
	dst := image.NewRGBA(image.Rect(0, 0, w*2, h*2))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, dst)
}

// setupTestScene programs a checkerboard NBG0 and a couple of VDP1
// primitives through the host bus, the same way a game would.
func setupTestScene(v *emu.VDP) {
	const (
		vdp1VRAM = 0x5C00000
		vdp1Regs = 0x5D00000
		vdp2VRAM = 0x5E00000
		cram     = 0x5F00000
		vdp2Regs = 0x5F80000
	)

	// TVMD: display on, 320x224 NTSC progressive
	v.Write16(vdp2Regs+0x000, 0x8000)
	// RAMCTL: CRAM mode 0
	v.Write16(vdp2Regs+0x00E, 0x0000)
	// VRAM cycle patterns: NBG0 pattern name in slot 0, character pattern
	// in slot 1 of bank A0
	v.Write16(vdp2Regs+0x010, 0x04FF)
	v.Write16(vdp2Regs+0x012, 0xFFFF)

	// NBG0: cell mode, 16 colors, 1x1 cells, 1-word pattern names
	v.Write16(vdp2Regs+0x020, 0x0001) // BGON
	v.Write16(vdp2Regs+0x028, 0x0000) // CHCTLA
	v.Write16(vdp2Regs+0x030, 0x8000) // PNCN0
	v.Write16(vdp2Regs+0x03A, 0x0000) // PLSZ
	v.Write16(vdp2Regs+0x03C, 0x0000) // MPOFN
	v.Write16(vdp2Regs+0x040, 0x0101) // MPABN0: planes at page 1
	v.Write16(vdp2Regs+0x042, 0x0101) // MPCDN0
	v.Write16(vdp2Regs+0x0F8, 0x0007) // PRINA: NBG0 priority 7

	// Back screen: dark blue at VRAM 0x40000
	v.Write32(vdp2VRAM+0x40000, 0x50000000)
	v.Write16(vdp2Regs+0x0AC, 0x0002) // BKTAU
	v.Write16(vdp2Regs+0x0AE, 0x0000) // BKTAL

	// Palette: entry 1 light gray, entry 2 orange-ish
	v.Write16(cram+0x02, 0x5EF7)
	v.Write16(cram+0x04, 0x1ABF)

	// Two 16-color tiles: solid color 1 and solid color 2
	for i := uint32(0); i < 32; i += 2 {
		v.Write16(vdp2VRAM+i, 0x1111)
		v.Write16(vdp2VRAM+0x20+i, 0x2222)
	}

	// Pattern name page at 0x2000: checkerboard of the two tiles
	for ty := uint32(0); ty < 64; ty++ {
		for tx := uint32(0); tx < 64; tx++ {
			entry := uint16(0)
			if (tx+ty)&1 != 0 {
				entry = 1
			}
			v.Write16(vdp2VRAM+0x2000+(ty*64+tx)*2, entry)
		}
	}

	// Sprite layer: type 0, sprite priority group 0 -> priority 6
	v.Write16(vdp2Regs+0x0E0, 0x0000) // SPCTL
	v.Write16(vdp2Regs+0x0F0, 0x0606) // PRISA

	// VDP1 command list: system clip, local coordinates, one polygon
	writeCmd := func(addr uint32, words [16]uint16) {
		for i, w := range words {
			v.Write16(vdp1VRAM+addr+uint32(i)*2, w)
		}
	}
	writeCmd(0x00, [16]uint16{0x0009, 0, 0, 0, 0, 0, 0, 0, 0, 0, 319, 223})
	writeCmd(0x20, [16]uint16{0x000A, 0, 0, 0, 0, 0, 0x0020, 0x0020})
	writeCmd(0x40, [16]uint16{0x0004, 0, 0x00C0, 0x7FFF, 0, 0,
		40, 10, 100, 10, 90, 60, 30, 50})
	writeCmd(0x60, [16]uint16{0x8000})

	// Plot trigger: auto start at framebuffer swap
	v.Write16(vdp1Regs+0x04, 0x0002)
}

func main() {
	region := flag.String("region", "ntsc", "video standard: ntsc or pal")
	threaded := flag.Bool("threaded", false, "render on worker goroutines")
	deinterlace := flag.Bool("deinterlace", false, "render both interlace fields")
	screenshot := flag.String("screenshot", "", "write a PNG after -frames frames and exit")
	frames := flag.Int("frames", 8, "frames to run before -screenshot")
	flag.Parse()

	cfg := emu.DefaultConfig()
	if *region == "pal" {
		cfg.Region = emu.RegionPAL
	}
	cfg.ThreadedVDP1 = *threaded
	cfg.ThreadedVDP2 = *threaded
	cfg.Deinterlace = *deinterlace

	v, err := newViewer(cfg)
	if err != nil {
		log.Fatalf("vdpview: %v", err)
	}
	defer v.vdp.Close()

	if *screenshot != "" {
		if err := v.writeScreenshot(*screenshot, *frames); err != nil {
			log.Fatalf("vdpview: screenshot: %v", err)
		}
		return
	}

	ebiten.SetWindowSize(640, 448)
	ebiten.SetWindowTitle("vdpview")
	if err := ebiten.RunGame(v); err != nil {
		log.Fatal(err)
	}
}
