package server

import (
	"log"

	"github.com/google/uuid"

	"openclaw/internal/models"
	"openclaw/internal/storage"
	"openclaw/pkg/protocol"
)

// tokenBot is the local bot whose contact entries carry a freshly minted
// bot token.
const tokenBot = "openclaw-bot"

// fanoutPresence delivers a contact_status event for user to every online
// watcher: owners whose contact row for this user is not blocked.
func (s *Server) fanoutPresence(folded, display string, online bool, statusText string) {
	watchers, err := s.store.ListWatchers(folded)
	if err != nil {
		log.Printf("presence fan-out for %s: %v", display, err)
		return
	}
	ev := protocol.ContactStatusEvent{
		Action:     protocol.EventContactStatus,
		User:       display,
		Online:     online,
		StatusText: statusText,
	}
	for _, owner := range watchers {
		if sess, ok := s.registry.Get(owner); ok {
			if err := sess.Send(ev); err != nil {
				log.Printf("presence fan-out to %s failed: %v", owner, err)
			}
		}
	}
}

// contactList builds the owner's contact_list payload: per-row presence,
// admin flag, status text and bot metadata. Virtual bots always report
// online with their configured status.
func (s *Server) contactList(owner string) ([]protocol.ContactEntry, error) {
	rows, err := s.store.ListContacts(owner)
	if err != nil {
		return nil, err
	}
	entries := make([]protocol.ContactEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, s.contactEntry(owner, row))
	}
	return entries, nil
}

func (s *Server) contactEntry(owner string, row models.Contact) protocol.ContactEntry {
	entry := protocol.ContactEntry{
		User:      row.Display,
		Blocked:   row.Blocked,
		IsAdmin:   s.admins.IsAdmin(row.Contact),
		BotOrigin: "user",
	}
	if entry.User == "" {
		entry.User = row.Contact
	}

	if name, ok := s.cfg.Bots.IsBot(row.Contact); ok {
		entry.User = name
		entry.IsBot = true
		entry.BotOrigin = "local"
		entry.Online = true
		entry.StatusText = s.cfg.Bots.Status(name)
		if name == tokenBot {
			entry.BotToken = s.mintBotToken(owner, name)
		}
		return entry
	}
	if name, ok := s.cfg.Bots.IsExternalBot(row.Contact); ok {
		entry.User = name
		entry.IsBot = true
		entry.BotOrigin = "external"
	}

	if sess, ok := s.registry.Get(row.Contact); ok {
		entry.Online = true
		entry.StatusText = sess.Status()
		entry.User = sess.User
	}
	return entry
}

// mintBotToken issues and persists a fresh token for the owner's local bot
// entry. Failures degrade to an entry without a token.
func (s *Server) mintBotToken(owner, bot string) string {
	token := uuid.NewString()
	err := s.store.CreateBotToken(&models.BotToken{
		Username: owner,
		Bot:      bot,
		Token:    token,
	})
	if err != nil {
		log.Printf("mint bot token for %s: %v", owner, err)
		return ""
	}
	return token
}

// sendContactList delivers the contact_list event to a session.
func (s *Server) sendContactList(sess *Session) {
	entries, err := s.contactList(sess.Folded)
	if err != nil {
		log.Printf("contact list for %s: %v", sess.User, err)
		return
	}
	_ = sess.Send(protocol.ContactListEvent{
		Action:   protocol.EventContactList,
		Contacts: entries,
	})
}

// isKnownRecipient reports whether name is addressable: a real user row or
// a recognised virtual bot.
func (s *Server) isKnownRecipient(name string) bool {
	if _, ok := s.cfg.Bots.IsBot(name); ok {
		return true
	}
	if _, ok := s.cfg.Bots.IsExternalBot(name); ok {
		return true
	}
	_, err := s.store.LookupUser(name)
	return err == nil
}

// displayName resolves the stored casing for a username, falling back to
// the given spelling.
func (s *Server) displayName(name string) string {
	if bot, ok := s.cfg.Bots.IsBot(name); ok {
		return bot
	}
	if bot, ok := s.cfg.Bots.IsExternalBot(name); ok {
		return bot
	}
	if user, err := s.store.LookupUser(name); err == nil {
		return user.Username
	}
	return name
}

// fold is a local alias for the canonical username form.
func fold(name string) string {
	return storage.Fold(name)
}
