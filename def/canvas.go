package def

import "image"
import "image/color"

// PlacePlane composites one frame's Object (or Shadow) channel onto a
// fullW x fullH canvas at the frame's rectangle, leaving everywhere else
// at fill. It never mutates the frame's own buffers.
func PlacePlane(f *Frame, plane []byte, fill byte) []byte {
	out := make([]byte, f.FullW*f.FullH)
	for i := range out {
		out[i] = fill
	}
	fullW := int(f.FullW)
	for y := 0; y < int(f.Height); y++ {
		dstY := int(f.Top) + y
		if dstY < 0 || dstY >= int(f.FullH) {
			continue
		}
		srcRow := plane[y*int(f.Width) : (y+1)*int(f.Width)]
		dstOff := dstY*fullW + int(f.Left)
		if dstOff < 0 || dstOff+len(srcRow) > len(out) {
			continue
		}
		copy(out[dstOff:dstOff+len(srcRow)], srcRow)
	}
	return out
}

// MergedColor resolves one (objectIndex, shadowIndex) pixel pair into a
// displayable colour: the sentinel shadow value 0xFF means "no shadow,
// show the object pixel resolved through pal (the DEF's own, unmodified
// palette)"; any other shadow value is a shadow pixel resolved through
// shadowPal (a palette with the reserved 0..7 roles remapped to the
// renderer's shadow colours). This is a pure function — it never mutates
// pal, shadowPal or the caller's pixel buffers, unlike the source's
// in-place RSFullBmp compositing.
func MergedColor(objectIndex, shadowIndex byte, pal, shadowPal []byte) color.NRGBA {
	if shadowIndex == 0xFF {
		return paletteColor(pal, objectIndex)
	}
	return paletteColor(shadowPal, shadowIndex)
}

func paletteColor(pal []byte, idx byte) color.NRGBA {
	i := int(idx) * 3
	if i+3 > len(pal) {
		return color.NRGBA{}
	}
	alpha := byte(0xFF)
	if idx == RoleTransparent {
		alpha = 0
	}
	return color.NRGBA{R: pal[i], G: pal[i+1], B: pal[i+2], A: alpha}
}

// Merge composites a frame's object and shadow channels into a single
// full-canvas RGBA image, per the RSFullBmp mode: pal is the frame's own
// (unmodified) palette used for object pixels; shadowPal is the role-
// remapped palette used wherever the shadow channel isn't the 0xFF
// sentinel.
func Merge(f *Frame, pal, shadowPal []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, int(f.FullW), int(f.FullH)))
	object := PlacePlane(f, f.Object, RoleTransparent)
	shadow := PlacePlane(f, f.Shadow, 0xFF)

	for i := range object {
		c := MergedColor(object[i], shadow[i], pal, shadowPal)
		img.SetNRGBA(i%int(f.FullW), i/int(f.FullW), c)
	}
	return img
}

// ShadowPalette returns a copy of pal with the reserved indices 0..7
// remapped to the renderer's shadow colours: black for the transparent,
// edge-shadow and body-shadow roles, white, mid grey (0x80) and light grey
// (0xC0) for the three selection roles, and black for the HotA body2/edge2
// roles when useHotaP2P3 is set. The result is plain RGB with no alpha.
func ShadowPalette(pal []byte, useHotaP2P3 bool) []byte {
	out := append([]byte(nil), pal...)
	set := func(idx int, r, g, b byte) {
		out[idx*3], out[idx*3+1], out[idx*3+2] = r, g, b
	}
	set(RoleTransparent, 0, 0, 0)
	set(RoleEdgeShadow, 0, 0, 0)
	set(RoleBodyShadow, 0, 0, 0)
	set(RoleSelectHi, 0xFF, 0xFF, 0xFF)
	set(RoleSelectBody, 0x80, 0x80, 0x80)
	set(RoleSelectEdge, 0xC0, 0xC0, 0xC0)
	if useHotaP2P3 {
		set(RoleBody2, 0, 0, 0)
		set(RoleEdge2, 0, 0, 0)
	}
	return out
}
