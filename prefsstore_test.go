package deskmirror

import (
	"path/filepath"
	"testing"
)

func openPrefsStore(t *testing.T) *PrefsStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.db")
	p, err := NewPrefsStore(path)
	if err != nil {
		t.Fatalf("NewPrefsStore: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPrefsStoreLoadEmptyReturnsZeroValue(t *testing.T) {
	p := openPrefsStore(t)
	prefs, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(prefs.Rules) != 0 || len(prefs.Facts) != 0 || len(prefs.EmojiPatterns) != 0 {
		t.Errorf("expected zero-value PreferenceSet, got %+v", prefs)
	}
}

func TestPrefsStoreSaveLoadRoundTrip(t *testing.T) {
	p := openPrefsStore(t)
	var prefs PreferenceSet
	prefs.AddRule("always cc the on-call channel")
	prefs.AddFact("works Pacific time")
	prefs.AddEmojiPattern(":eyes:", "someone is looking into it", false, 1)

	if err := p.Save(prefs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := p.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Rules) != 1 || got.Rules[0].Text != "always cc the on-call channel" {
		t.Errorf("Rules = %+v", got.Rules)
	}
	if len(got.Facts) != 1 || got.Facts[0].Text != "works Pacific time" {
		t.Errorf("Facts = %+v", got.Facts)
	}
	if len(got.EmojiPatterns) != 1 || got.EmojiPatterns[0].Emoji != "eyes" {
		t.Errorf("EmojiPatterns = %+v", got.EmojiPatterns)
	}
}
