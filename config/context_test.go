package config

import (
	"strings"
	"testing"
)

func TestLoadDefConfigAndPredicates(t *testing.T) {
	c := New()
	err := c.LoadDefConfig(strings.NewReader(`{
		"avwshade": {"is_adv_map_creature": true, "uses_hota_shadow_p2p3": true},
		"avwarchr": {"keeps_selection_palette": true}
	}`))
	if err != nil {
		t.Fatalf("LoadDefConfig: %v", err)
	}

	if !c.IsAdvMapCreature("avwshade.def") {
		t.Error("expected avwshade to be an adv-map creature")
	}
	if !c.UsesHotaShadowP2P3("avwshade.def") {
		t.Error("expected avwshade to use HotA shadow p2/p3")
	}
	if c.UsesHotaShadowP2P3("unlisted.def") {
		t.Error("unlisted stem should not default to HotA shadow unless SetHota(true)")
	}
	if !c.KeepsSelectionPalette("avwarchr.def") {
		t.Error("expected avwarchr to keep its selection palette")
	}
}

func TestHotaDefaultFallback(t *testing.T) {
	c := New()
	c.SetHota(true)
	if !c.NeedsPalette255Fix("whatever.def") {
		t.Error("expected HotA default to apply the palette-255 fix for an unlisted stem")
	}
}

func TestIsAdvMapCreatureViaObjectsByID(t *testing.T) {
	c := New()
	err := c.LoadObjectsByID(strings.NewReader(`{"42": "avwdrgn.def"}`))
	if err != nil {
		t.Fatalf("LoadObjectsByID: %v", err)
	}
	if !c.IsAdvMapCreature("avwdrgn.def") {
		t.Error("expected avwdrgn to resolve as an adv-map creature via objectsByID")
	}
}
