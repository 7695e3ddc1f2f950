package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/policy"
	"openclaw/pkg/protocol"
)

// handleFileOffer validates an offer and parks it in the transfer broker.
// Filenames are fixed here; whatever arrives later in file_data is renamed
// back to these.
func (s *Server) handleFileOffer(sess *Session, line []byte) {
	var req protocol.FileOfferRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	fail := func(reason string) {
		_ = sess.Send(protocol.FileOfferFailedEvent{
			Action: protocol.EventFileOfferFailed,
			To:     req.To,
			Reason: reason,
		})
	}

	if !s.policy.CanUse(sess.Folded, policy.FeatureFileTransfer) {
		fail("File transfers are not available to you.")
		return
	}
	if len(req.Files) == 0 {
		fail("No files in offer.")
		return
	}

	// Recipient checks come before the per-file ones; an offer to an
	// offline or blocking recipient fails for that reason even when a
	// file would also be rejected.
	toFolded := fold(req.To)
	target, online := s.registry.Get(toFolded)
	if !online {
		fail(fmt.Sprintf("%s is offline.", s.displayName(req.To)))
		return
	}
	senderBlocked, recipientBlocked, err := s.store.BlockFlags(sess.Folded, toFolded)
	if err != nil {
		log.Printf("file_offer %s -> %s: block check: %v", sess.User, req.To, err)
	}
	if senderBlocked {
		fail("You have blocked this contact.")
		return
	}
	if recipientBlocked {
		fail(fmt.Sprintf("%s has you blocked.", target.User))
		return
	}

	for _, f := range req.Files {
		if f.Filename == "" || strings.ContainsAny(f.Filename, `/\`) {
			fail("Invalid filename.")
			return
		}
		if ext, blocked := s.blacklistedExt(f.Filename); blocked {
			fail(fmt.Sprintf("File type '.%s' is not allowed by the server.", ext))
			return
		}
		if limit := s.cfg.Server.SizeLimit; limit > 0 && f.Size > limit {
			fail(fmt.Sprintf("File exceeds the server size limit of %d bytes.", limit))
			return
		}
		ext := extOf(f.Filename)
		if ban, err := s.store.ActiveFileBan(sess.Folded, ext, time.Now()); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				log.Printf("file_offer %s: ban check: %v", sess.User, err)
			}
		} else if ban != nil {
			fail(fmt.Sprintf("You are banned from sending '.%s' files.", ext))
			return
		}
	}

	// Strip any inline data; only metadata travels with the offer.
	files := make([]protocol.FileMeta, len(req.Files))
	for i, f := range req.Files {
		files[i] = protocol.FileMeta{Filename: f.Filename, Size: f.Size}
	}

	id := s.transfers.Add(&PendingTransfer{
		From:     sess.Folded,
		To:       toFolded,
		FromName: sess.User,
		ToName:   target.User,
		ClientID: req.TransferID,
		Files:    files,
	})
	metricTransfersBrokered.Inc()

	err = target.Send(protocol.FileOfferEvent{
		Action:     protocol.EventFileOffer,
		From:       sess.User,
		Files:      files,
		TransferID: id,
	})
	if err != nil {
		s.transfers.Take(id)
		fail(fmt.Sprintf("%s is offline.", target.User))
	}
}

// handleFileAccept notifies the sender; the transfer stays pending until
// file_data or decline consumes it.
func (s *Server) handleFileAccept(sess *Session, line []byte) {
	var req protocol.FileActionRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	t, ok := s.transfers.Get(req.TransferID)
	if !ok || t.To != sess.Folded {
		return
	}
	sender, online := s.registry.Get(t.From)
	if !online {
		s.transfers.Take(req.TransferID)
		return
	}
	_ = sender.Send(protocol.FileAcceptedEvent{
		Action:           protocol.EventFileAccepted,
		TransferID:       t.ID,
		ClientTransferID: t.ClientID,
		To:               t.ToName,
		Files:            t.Files,
	})
}

func (s *Server) handleFileDecline(sess *Session, line []byte) {
	var req protocol.FileActionRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	t, ok := s.transfers.Take(req.TransferID)
	if !ok || t.To != sess.Folded {
		return
	}
	if sender, online := s.registry.Get(t.From); online {
		_ = sender.Send(protocol.FileDeclinedEvent{
			Action:           protocol.EventFileDeclined,
			TransferID:       t.ID,
			ClientTransferID: t.ClientID,
			To:               t.ToName,
		})
	}
}

// handleFileData delivers the bytes of an accepted offer. Filenames from
// the wire are discarded: each file is renamed to the offer-time name at
// its index, and files beyond the offered count are dropped.
func (s *Server) handleFileData(sess *Session, line []byte) {
	var req protocol.FileDataRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	t, ok := s.transfers.Take(req.TransferID)
	if !ok || t.From != sess.Folded {
		return
	}
	target, online := s.registry.Get(t.To)
	if !online {
		return
	}

	files := make([]protocol.FileMeta, 0, len(t.Files))
	for i, f := range req.Files {
		if i >= len(t.Files) {
			break
		}
		files = append(files, protocol.FileMeta{
			Filename: t.Files[i].Filename,
			Size:     t.Files[i].Size,
			Data:     f.Data,
		})
	}

	_ = target.Send(protocol.FileDataEvent{
		Action: protocol.EventFileData,
		From:   t.FromName,
		Files:  files,
	})
}

// blacklistedExt reports whether a filename's extension is on the
// server-wide blacklist.
func (s *Server) blacklistedExt(filename string) (string, bool) {
	ext := extOf(filename)
	if ext == "" {
		return "", false
	}
	for _, blocked := range s.cfg.Server.BlacklistExts {
		if ext == blocked {
			return ext, true
		}
	}
	return "", false
}

// extOf returns the lower-case extension without the leading dot.
func extOf(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
