package def

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// ToolListOptions configures the DefTool-style companion export.
type ToolListOptions struct {
	// Dir is the directory per-frame .bmp files and the .txt list are
	// written into.
	Dir string
	// In24Bits forces RGB .bmp output instead of 8-bit indexed.
	In24Bits bool
	// ShadowPalette, if non-nil, is used for shadow-channel frame exports
	// instead of the DEF's own palette (see canvas.go's ShadowPalette).
	ShadowPalette []byte
}

// WriteToolList exports f as a DefTool-compatible companion: one .bmp per
// unique frame, plus an INI-formatted index naming the type, per-group
// frame lists, and the reserved-palette colour boxes. Grounded on
// RSDef.py's extract_def_tool_list.
func WriteToolList(f *File, base string, opts ToolListOptions) error {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return err
	}

	var ini strings.Builder
	fmt.Fprintf(&ini, "[General]\n")
	fmt.Fprintf(&ini, "Type=%d\n", f.Header.Type)
	fmt.Fprintf(&ini, "Groups Number=%d\n", len(f.Groups))

	written := map[*Frame]bool{}
	for _, g := range f.Groups {
		var names []string
		var shadowNames []string
		for _, fr := range g.Frames {
			bmpName := fmt.Sprintf("%s_%d_%s.bmp", base, g.ID, strings.TrimSuffix(fr.Name, filepath.Ext(fr.Name)))
			names = append(names, bmpName)

			if !written[fr] {
				written[fr] = true
				if err := writeFrameBMP(filepath.Join(opts.Dir, bmpName), fr, f.Header.Palette, opts); err != nil {
					return err
				}
			}

			if opts.ShadowPalette != nil {
				shadowName := fmt.Sprintf("%s_%d_%s_shadow.bmp", base, g.ID, strings.TrimSuffix(fr.Name, filepath.Ext(fr.Name)))
				shadowNames = append(shadowNames, shadowName)
				if err := writeShadowBMP(filepath.Join(opts.Dir, shadowName), fr, opts.ShadowPalette); err != nil {
					return err
				}
			}
		}
		fmt.Fprintf(&ini, "Group%d=%s\n", g.ID, strings.Join(names, "|"))
		if len(shadowNames) > 0 {
			fmt.Fprintf(&ini, "Shadow%d=%s\n", g.ID, strings.Join(shadowNames, "|"))
		}
	}

	fmt.Fprintf(&ini, "ColorsBox.Colors=%s\n", hexColors(f.Header.Palette[:8*3]))
	if f.Header.Type == TypeTerrain {
		lo := 224 * 3
		hi := 256 * 3
		if hi <= len(f.Header.Palette) {
			fmt.Fprintf(&ini, "ColorsBox.PlayerColors=%s\n", hexColors(f.Header.Palette[lo:hi]))
		}
	}
	fmt.Fprintf(&ini, "ColorChecks=%d\n", colorCheckMask(f.Header.Type))

	return os.WriteFile(filepath.Join(opts.Dir, base+".txt"), []byte(ini.String()), 0o644)
}

func hexColors(pal []byte) string {
	var sb strings.Builder
	for i := 0; i+3 <= len(pal); i += 3 {
		if i > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "%02X%02X%02X", pal[i], pal[i+1], pal[i+2])
	}
	return sb.String()
}

// colorCheckMask mirrors the DefTool per-type checkbox bitmask: which of
// the 8 reserved palette roles are meaningful editing targets for this DEF
// type.
func colorCheckMask(typ uint32) int {
	if typ == TypeTerrain {
		return 0xFF
	}
	return 0x1F
}

func writeFrameBMP(path string, f *Frame, pal []byte, opts ToolListOptions) error {
	img := frameToImage(f, pal, opts.In24Bits)
	return saveBMP(path, img)
}

func writeShadowBMP(path string, f *Frame, shadowPal []byte) error {
	img := image.NewPaletted(image.Rect(0, 0, int(f.Width), int(f.Height)), rgbaPalette(shadowPal))
	copy(img.Pix, f.Shadow)
	return saveBMP(path, img)
}

func frameToImage(f *Frame, pal []byte, in24Bits bool) image.Image {
	if !in24Bits {
		img := image.NewPaletted(image.Rect(0, 0, int(f.Width), int(f.Height)), rgbaPalette(pal))
		copy(img.Pix, f.Object)
		return img
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(f.Width), int(f.Height)))
	for i, idx := range f.Object {
		c := paletteColor(pal, idx)
		img.SetNRGBA(i%int(f.Width), i/int(f.Width), c)
	}
	return img
}

func rgbaPalette(pal []byte) color.Palette {
	p := make(color.Palette, 256)
	for i := 0; i < 256; i++ {
		if i*3+3 > len(pal) {
			p[i] = color.NRGBA{A: 0xFF}
			continue
		}
		p[i] = color.NRGBA{R: pal[i*3], G: pal[i*3+1], B: pal[i*3+2], A: 0xFF}
	}
	return p
}

func saveBMP(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return encodeBMP(out, img)
}

func encodeBMP(w io.Writer, img image.Image) error {
	return bmp.Encode(w, img)
}
