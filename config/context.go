// Package config loads the DEF predicate tables (defConfig.json,
// objectsByID.json) into an explicit, passed-in context, replacing the
// source's package-level _def_config_cache / _objects_cache globals with
// a value the caller constructs once and threads through the DEF
// pipeline.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
)

// DefEntry is one defConfig.json record: per-DEF-stem predicate overrides.
type DefEntry struct {
	IsAdvMapCreature   bool `json:"is_adv_map_creature"`
	UsesHotaShadowP2P3 bool `json:"uses_hota_shadow_p2p3"`
	NeedsPalette255Fix bool `json:"needs_palette_255_fix"`
	KeepsSelectionPal  bool `json:"keeps_selection_palette"`
}

// Context holds the parsed predicate tables for one DEF-processing
// session. It carries no package-level state; callers construct it once
// (typically at startup) and pass it to every DEF operation that needs a
// predicate.
type Context struct {
	defConfig map[string]DefEntry
	objectsByID map[int]string
	hota      bool
}

// New returns an empty Context with no loaded tables and HotA conventions
// disabled.
func New() *Context {
	return &Context{defConfig: map[string]DefEntry{}, objectsByID: map[int]string{}}
}

// SetHota toggles whether UsesHotaShadowP2P3/NeedsPalette255Fix default to
// true for stems with no explicit override, mirroring the source's HotA-
// detection flag derived from the archive path.
func (c *Context) SetHota(hota bool) { c.hota = hota }

// LoadDefConfig decodes defConfig.json (stem -> predicate overrides) from
// r into the context.
func (c *Context) LoadDefConfig(r io.Reader) error {
	return json.NewDecoder(r).Decode(&c.defConfig)
}

// LoadDefConfigFile is a convenience wrapper around LoadDefConfig for a
// path on disk.
func (c *Context) LoadDefConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadDefConfig(f)
}

// LoadObjectsByID decodes objectsByID.json (numeric id -> DEF stem) from
// r into the context.
func (c *Context) LoadObjectsByID(r io.Reader) error {
	raw := map[string]string{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return err
	}
	for k, v := range raw {
		id, err := parseID(k)
		if err != nil {
			continue
		}
		c.objectsByID[id] = v
	}
	return nil
}

// LoadObjectsByIDFile is a convenience wrapper for a path on disk.
func (c *Context) LoadObjectsByIDFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadObjectsByID(f)
}

func parseID(s string) (int, error) {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0, &strconvError{s}
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

type strconvError struct{ s string }

func (e *strconvError) Error() string { return "config: not a numeric id: " + e.s }

func stem(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func (c *Context) entry(defName string) DefEntry {
	return c.defConfig[stem(defName)]
}

// IsAdvMapCreature reports whether defName is classified as an adventure-
// map creature — either via an explicit defConfig.json override, or by
// reverse lookup through objectsByID.json.
func (c *Context) IsAdvMapCreature(defName string) bool {
	if e, ok := c.defConfig[stem(defName)]; ok && e.IsAdvMapCreature {
		return true
	}
	target := stem(defName)
	for _, name := range c.objectsByID {
		if stem(name) == target {
			return true
		}
	}
	return false
}

// UsesHotaShadowP2P3 reports whether defName should treat palette indices
// 2 and 3 as HotA shadow-role variants.
func (c *Context) UsesHotaShadowP2P3(defName string) bool {
	if e, ok := c.defConfig[stem(defName)]; ok {
		return e.UsesHotaShadowP2P3
	}
	return c.hota
}

// NeedsPalette255Fix reports whether defName requires the palette-index-
// 255 shadow-sentinel workaround under HotA conventions.
func (c *Context) NeedsPalette255Fix(defName string) bool {
	if e, ok := c.defConfig[stem(defName)]; ok {
		return e.NeedsPalette255Fix
	}
	return c.hota
}

// KeepsSelectionPalette reports whether defName's selection-highlight
// palette entries (indices 5..7) should be preserved verbatim rather than
// remapped during shadow-palette generation.
func (c *Context) KeepsSelectionPalette(defName string) bool {
	return c.entry(defName).KeepsSelectionPal
}
