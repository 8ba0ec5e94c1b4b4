package chatsource

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/ctirelay/relay/internal/envelope"
)

// DownloadMedia implements orchestrator.MediaDownloader over a live gotd/td
// client: it pulls the largest available photo size or the document file
// straight from the envelope's Original message, mirroring the uploader
// usage already wired into the chat sender.
func (s *Source) DownloadMedia(ctx context.Context, env *envelope.Envelope, destPath string) error {
	msg, ok := env.Original.(*tg.Message)
	if !ok || msg.Media == nil {
		return fmt.Errorf("envelope has no source message to download from")
	}

	loc, ok := inputFileLocation(msg.Media)
	if !ok {
		return fmt.Errorf("message has no downloadable media")
	}

	d := downloader.NewDownloader()
	if _, err := d.Download(s.api, loc).ToPath(ctx, destPath); err != nil {
		return fmt.Errorf("downloading media: %w", err)
	}
	return nil
}

func inputFileLocation(media tg.MessageMediaClass) (tg.InputFileLocationClass, bool) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, false
		}
		size, ok := largestPhotoSizeType(photo.Sizes)
		if !ok {
			return nil, false
		}
		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     size,
		}, true
	case *tg.MessageMediaDocument:
		doc, ok := m.GetDocument()
		if !ok {
			return nil, false
		}
		d, ok := doc.(*tg.Document)
		if !ok {
			return nil, false
		}
		return &tg.InputDocumentFileLocation{
			ID:            d.ID,
			AccessHash:    d.AccessHash,
			FileReference: d.FileReference,
		}, true
	default:
		return nil, false
	}
}

// largestPhotoSizeType picks the photo size with the greatest pixel area,
// skipping strippped/placeholder entries that carry no dimensions.
func largestPhotoSizeType(sizes []tg.PhotoSizeClass) (string, bool) {
	var bestType string
	var bestArea int
	for _, s := range sizes {
		var w, h int
		var typ string
		switch sz := s.(type) {
		case *tg.PhotoSize:
			w, h, typ = sz.W, sz.H, sz.Type
		case *tg.PhotoSizeProgressive:
			w, h, typ = sz.W, sz.H, sz.Type
		case *tg.PhotoCachedSize:
			w, h, typ = sz.W, sz.H, sz.Type
		default:
			continue
		}
		if area := w * h; area > bestArea {
			bestArea = area
			bestType = typ
		}
	}
	return bestType, bestType != ""
}

// DocumentFilename returns the filename Telegram attaches to a document
// attachment, if any, for the orchestrator's restricted-mode safety check
// and for naming the downloaded copy on disk.
func DocumentFilename(env *envelope.Envelope) (string, bool) {
	msg, ok := env.Original.(*tg.Message)
	if !ok {
		return "", false
	}
	mm, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return "", false
	}
	doc, ok := mm.GetDocument()
	if !ok {
		return "", false
	}
	d, ok := doc.(*tg.Document)
	if !ok {
		return "", false
	}
	for _, attr := range d.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return fn.FileName, true
		}
	}
	return "", false
}
