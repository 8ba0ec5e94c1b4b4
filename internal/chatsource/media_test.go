package chatsource

import (
	"testing"

	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/envelope"
)

func TestLargestPhotoSizeType_PicksGreatestArea(t *testing.T) {
	sizes := []tg.PhotoSizeClass{
		&tg.PhotoSize{Type: "s", W: 90, H: 90},
		&tg.PhotoSize{Type: "x", W: 800, H: 600},
		&tg.PhotoCachedSize{Type: "c", W: 100, H: 100},
	}

	got, ok := largestPhotoSizeType(sizes)
	if !ok || got != "x" {
		t.Fatalf("largestPhotoSizeType() = (%q, %v), want (\"x\", true)", got, ok)
	}
}

func TestLargestPhotoSizeType_NoUsableSizes(t *testing.T) {
	sizes := []tg.PhotoSizeClass{&tg.PhotoStrippedSize{Type: "j"}}
	if _, ok := largestPhotoSizeType(sizes); ok {
		t.Fatal("largestPhotoSizeType() ok = true, want false for only stripped sizes")
	}
}

func TestInputFileLocation_Photo(t *testing.T) {
	photo := &tg.Photo{
		ID:         111,
		AccessHash: 222,
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoSize{Type: "x", W: 800, H: 600},
		},
	}
	media := &tg.MessageMediaPhoto{Photo: photo}

	loc, ok := inputFileLocation(media)
	if !ok {
		t.Fatal("inputFileLocation() ok = false, want true")
	}
	photoLoc, ok := loc.(*tg.InputPhotoFileLocation)
	if !ok {
		t.Fatalf("loc = %T, want *tg.InputPhotoFileLocation", loc)
	}
	if photoLoc.ID != 111 || photoLoc.AccessHash != 222 || photoLoc.ThumbSize != "x" {
		t.Fatalf("unexpected location: %+v", photoLoc)
	}
}

func TestInputFileLocation_Document(t *testing.T) {
	doc := &tg.Document{ID: 333, AccessHash: 444}
	media := &tg.MessageMediaDocument{Document: doc}

	loc, ok := inputFileLocation(media)
	if !ok {
		t.Fatal("inputFileLocation() ok = false, want true")
	}
	docLoc, ok := loc.(*tg.InputDocumentFileLocation)
	if !ok {
		t.Fatalf("loc = %T, want *tg.InputDocumentFileLocation", loc)
	}
	if docLoc.ID != 333 || docLoc.AccessHash != 444 {
		t.Fatalf("unexpected location: %+v", docLoc)
	}
}

func TestInputFileLocation_UnsupportedMediaKind(t *testing.T) {
	if _, ok := inputFileLocation(&tg.MessageMediaGeo{}); ok {
		t.Fatal("inputFileLocation() ok = true, want false for non-photo/document media")
	}
}

func TestDocumentFilename_ReturnsAttachedName(t *testing.T) {
	doc := &tg.Document{
		ID: 5,
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeAudio{},
			&tg.DocumentAttributeFilename{FileName: "report.csv"},
		},
	}
	env := &envelope.Envelope{Original: &tg.Message{
		Media: &tg.MessageMediaDocument{Document: doc},
	}}

	name, ok := DocumentFilename(env)
	if !ok || name != "report.csv" {
		t.Fatalf("DocumentFilename() = (%q, %v), want (\"report.csv\", true)", name, ok)
	}
}

func TestDocumentFilename_NoDocumentMedia(t *testing.T) {
	env := &envelope.Envelope{Original: &tg.Message{
		Media: &tg.MessageMediaPhoto{},
	}}
	if _, ok := DocumentFilename(env); ok {
		t.Fatal("DocumentFilename() ok = true, want false for a photo message")
	}
}

func TestMessageID_ReturnsSourceMessageID(t *testing.T) {
	env := &envelope.Envelope{Original: &tg.Message{ID: 987}}
	id, ok := MessageID(env)
	if !ok || id != "987" {
		t.Fatalf("MessageID() = (%q, %v), want (\"987\", true)", id, ok)
	}
}

func TestMessageID_NonChatEnvelope(t *testing.T) {
	env := &envelope.Envelope{Original: nil}
	if _, ok := MessageID(env); ok {
		t.Fatal("MessageID() ok = true, want false for a non-chat envelope")
	}
}
