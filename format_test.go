package deskmirror

import "testing"

func TestNormalizeEmojiNameEquivalence(t *testing.T) {
	forms := []string{"pepe-noted", ":Pepe_Noted:", "pepe_noted", " :PEPE-NOTED: "}
	want := NormalizeEmojiName(forms[0])
	for _, f := range forms {
		if got := NormalizeEmojiName(f); got != want {
			t.Fatalf("NormalizeEmojiName(%q) = %q, want %q", f, got, want)
		}
	}
}

func TestFormatTextResolvesKnownMentions(t *testing.T) {
	body := "hey <@U1> check <#C1|general> or <#C2>"
	users := map[string]User{"U1": {ID: "U1", DisplayName: "ana"}}
	channels := map[string]Channel{"C2": {ID: "C2", Name: "random"}}

	got := FormatText(body, users, channels)
	want := "hey @ana check #general or #random"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatTextFallsBackToID(t *testing.T) {
	got := FormatText("hi <@U404>", nil, nil)
	if got != "hi @U404" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatTextDecodesHTMLEntities(t *testing.T) {
	got := FormatText("a &amp; b &lt;tag&gt;", nil, nil)
	if got != "a & b <tag>" {
		t.Fatalf("got %q", got)
	}
}

func TestCollectEntitiesThenFormatResolvesAllKnownMentions(t *testing.T) {
	body := "ping <@U1> and <@U2>"
	ents := CollectEntities(body)
	users := map[string]User{"U1": {ID: "U1", DisplayName: "a"}, "U2": {ID: "U2", DisplayName: "b"}}
	if !ents.UserIDs["U1"] || !ents.UserIDs["U2"] {
		t.Fatalf("collect missed a mention: %+v", ents)
	}
	got := FormatText(body, users, nil)
	if got != "ping @a and @b" {
		t.Fatalf("got %q", got)
	}
}
