package destination

import (
	"errors"
	"testing"
)

func TestClassifyExtMedia(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":  "image",
		"photo.PNG":  "image",
		"report.pdf": "document",
		"noext":      "document",
	}
	for path, want := range cases {
		if got := classifyExtMedia(path); got != want {
			t.Errorf("classifyExtMedia(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestClassifyChatError_NonFloodWaitIsError(t *testing.T) {
	result := classifyChatError(errors.New("boom"))
	if result.Outcome != OutcomeError {
		t.Fatalf("Outcome = %v, want Error", result.Outcome)
	}
}

func TestRandomID_NonNegative(t *testing.T) {
	for i := 0; i < 20; i++ {
		if id := randomID(); id < 0 {
			t.Fatalf("randomID() = %d, want non-negative", id)
		}
	}
}

func TestChatCaptionOverflowBoundary(t *testing.T) {
	shortCaption := make([]rune, chatCaptionMax)
	longCaption := make([]rune, chatCaptionMax+1)
	for i := range shortCaption {
		shortCaption[i] = 'a'
	}
	for i := range longCaption {
		longCaption[i] = 'a'
	}

	if len(shortCaption) > chatCaptionMax {
		t.Fatal("fixture error: short caption should fit")
	}
	if len(longCaption) <= chatCaptionMax {
		t.Fatal("fixture error: long caption should overflow")
	}
}
