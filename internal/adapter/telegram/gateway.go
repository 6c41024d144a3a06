package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/Berektassuly/tg-sync/internal/domain"
	"github.com/Berektassuly/tg-sync/internal/pkg/retry"
)

// mediaPayload is the JSON shape stashed in domain.Message.Media /
// domain.MediaReference.Media: just enough of the gotd InputFileLocation to
// re-download later without re-resolving the owning message.
type mediaPayload struct {
	DialogID      int64  `json:"dialog_id"`
	ChannelAccess int64  `json:"channel_access_hash,omitempty"`
	DocumentID    int64  `json:"document_id"`
	AccessHash    int64  `json:"access_hash"`
	FileReference []byte `json:"file_reference"`
	Extension     string `json:"extension"`
}

// ListDialogs enumerates accessible peers and caches their access handles
// in the Entity Registry.
func (c *Client) ListDialogs(ctx context.Context) ([]domain.Dialog, error) {
	var res tg.MessagesDialogsClass
	err := retry.WithRetry(ctx, "list dialogs", func() error {
		var callErr error
		res, callErr = c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			Limit:      100,
			OffsetPeer: &tg.InputPeerEmpty{},
		})
		if callErr != nil {
			return wrapGatewayErr(callErr)
		}
		return nil
	}, 3, time.Second)
	if err != nil {
		return nil, err
	}

	var chats []tg.ChatClass
	var users []tg.UserClass
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		chats, users = d.Chats, d.Users
	case *tg.MessagesDialogsSlice:
		chats, users = d.Chats, d.Users
	}

	var out []domain.Dialog
	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			kind := domain.DialogChannel
			if ch.Megagroup {
				kind = domain.DialogSupergroup
			}
			_ = c.registry.Put(domain.EntityEntry{PeerID: ch.ID, AccessHash: ch.AccessHash, Kind: kind})
			out = append(out, domain.Dialog{ID: ch.ID, Title: ch.Title, Kind: kind})
		case *tg.Chat:
			_ = c.registry.Put(domain.EntityEntry{PeerID: ch.ID, Kind: domain.DialogGroup})
			out = append(out, domain.Dialog{ID: ch.ID, Title: ch.Title, Kind: domain.DialogGroup})
		}
	}
	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok || user.Self {
			continue
		}
		_ = c.registry.Put(domain.EntityEntry{PeerID: user.ID, AccessHash: user.AccessHash, Kind: domain.DialogUser})
		title := user.Username
		if title == "" {
			title = fmt.Sprintf("%s %s", user.FirstName, user.LastName)
		}
		out = append(out, domain.Dialog{ID: user.ID, Title: title, Kind: domain.DialogUser})
	}
	return out, nil
}

// ResolvePeer returns the cached access handle for peerID, re-listing
// dialogs once if it isn't cached yet.
func (c *Client) ResolvePeer(ctx context.Context, peerID int64) (domain.EntityEntry, error) {
	if e, ok := c.registry.Lookup(peerID); ok {
		return e, nil
	}
	if _, err := c.ListDialogs(ctx); err != nil {
		return domain.EntityEntry{}, err
	}
	if e, ok := c.registry.Lookup(peerID); ok {
		return e, nil
	}
	return domain.EntityEntry{}, fmt.Errorf("%w: peer %d not found in recent dialogs", domain.ErrGatewayNotFound, peerID)
}

// GetHistory returns up to limit messages with id > minID, as delivered by
// the gateway (newest-first, not boundary-clean — the caller re-filters).
func (c *Client) GetHistory(ctx context.Context, dialogID int64, minID int, limit int) ([]domain.Message, error) {
	entry, err := c.ResolvePeer(ctx, dialogID)
	if err != nil {
		return nil, err
	}

	peer := inputPeerFor(dialogID, entry)
	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
		MinID: minID,
	})
	if err != nil {
		return nil, wrapGatewayErr(err)
	}

	var raw []tg.MessageClass
	switch h := res.(type) {
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesMessages:
		raw = h.Messages
	}

	out := make([]domain.Message, 0, len(raw))
	for _, mc := range raw {
		m, ok := mc.(*tg.Message)
		if !ok {
			continue
		}
		msg := domain.Message{
			DialogID: dialogID,
			ID:       m.ID,
			SentAt:   time.Unix(int64(m.Date), 0).UTC(),
			Text:     m.Message,
		}
		if m.FromID != nil {
			if p, ok := m.FromID.(*tg.PeerUser); ok {
				id := p.UserID
				msg.SenderID = &id
			}
		}
		if media, ext, ok := encodeMedia(dialogID, entry, m.Media); ok {
			msg.Media = media
			msg.Extension = ext
		}
		out = append(out, msg)
	}
	return out, nil
}

// DownloadMedia streams media bytes to destPath.
func (c *Client) DownloadMedia(ctx context.Context, media domain.MediaReference, destPath string) error {
	var payload mediaPayload
	if err := json.Unmarshal(media.Media, &payload); err != nil {
		return fmt.Errorf("%w: decode media payload: %v", domain.ErrGatewayNotFound, err)
	}

	loc := &tg.InputDocumentFileLocation{
		ID:            payload.DocumentID,
		AccessHash:    payload.AccessHash,
		FileReference: payload.FileReference,
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrStoreIO, destPath, err)
	}
	defer f.Close()

	dl := downloader.NewDownloader()
	if _, err := dl.Download(c.api, loc).Stream(ctx, f); err != nil {
		os.Remove(destPath)
		return wrapGatewayErr(err)
	}
	return nil
}

// SendSelfMessage delivers text to the account's own Saved Messages dialog.
func (c *Client) SendSelfMessage(ctx context.Context, text string) error {
	_, err := c.sender.Self().StyledText(ctx, styling.Plain(text))
	if err != nil {
		return wrapGatewayErr(err)
	}
	return nil
}

func inputPeerFor(dialogID int64, entry domain.EntityEntry) tg.InputPeerClass {
	switch entry.Kind {
	case domain.DialogUser:
		return &tg.InputPeerUser{UserID: dialogID, AccessHash: entry.AccessHash}
	case domain.DialogGroup:
		return &tg.InputPeerChat{ChatID: dialogID}
	default:
		return &tg.InputPeerChannel{ChannelID: dialogID, AccessHash: entry.AccessHash}
	}
}

func encodeMedia(dialogID int64, entry domain.EntityEntry, media tg.MessageMediaClass) (json.RawMessage, string, bool) {
	doc, ok := media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, "", false
	}
	d, ok := doc.Document.(*tg.Document)
	if !ok {
		return nil, "", false
	}

	ext := extensionFor(d)
	payload := mediaPayload{
		DialogID:      dialogID,
		ChannelAccess: entry.AccessHash,
		DocumentID:    d.ID,
		AccessHash:    d.AccessHash,
		FileReference: d.FileReference,
		Extension:     ext,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", false
	}
	return b, ext, true
}

func extensionFor(d *tg.Document) string {
	for _, attr := range d.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			return "mp4"
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return "ogg"
			}
			return "mp3"
		case *tg.DocumentAttributeSticker:
			return "webp"
		case *tg.DocumentAttributeAnimated:
			return "mp4"
		}
	}
	switch d.MimeType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	default:
		return "bin"
	}
}

// wrapGatewayErr classifies a gotd error into the domain taxonomy, pulling
// the FLOOD_WAIT seconds out via gotd's own tgerr helper when present.
func wrapGatewayErr(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &domain.FloodWaitError{Seconds: int(d.Seconds())}
	}
	return fmt.Errorf("%w: %v", domain.ErrGatewayTransport, err)
}
