// Package notify delivers outbound email and SMS: verification codes,
// password reset codes, invitations and welcome messages. Failures are
// surfaced to the caller but must never terminate a client session.
package notify

import "log"

// Notifier is the outbound messaging interface consumed by the auth service
// and the request handlers.
type Notifier interface {
	SendVerification(email, username, code string) error
	SendResetCode(email, username, code string) error
	SendInviteEmail(email, fromUser string) error
	SendInviteSMS(phone, fromUser string) error
	SendWelcome(email, username string) error
}

// Composite fans out to a mailer and an SMS sender, either of which may be
// nil when not configured.
type Composite struct {
	Mail *Mailer
	SMS  *SMSClient
}

// NewComposite builds a Notifier from optional transports.
func NewComposite(mail *Mailer, sms *SMSClient) *Composite {
	return &Composite{Mail: mail, SMS: sms}
}

// Enabled reports whether email delivery is configured.
func (c *Composite) Enabled() bool {
	return c.Mail != nil
}

func (c *Composite) SendVerification(email, username, code string) error {
	if c.Mail == nil {
		return ErrMailDisabled
	}
	return c.Mail.Send(email,
		"Verify your account",
		"Hello "+username+",\r\n\r\nYour verification code is: "+code+"\r\n")
}

func (c *Composite) SendResetCode(email, username, code string) error {
	if c.Mail == nil {
		return ErrMailDisabled
	}
	return c.Mail.Send(email,
		"Password reset code",
		"Hello "+username+",\r\n\r\nYour password reset code is: "+code+"\r\n")
}

func (c *Composite) SendInviteEmail(email, fromUser string) error {
	if c.Mail == nil {
		return ErrMailDisabled
	}
	return c.Mail.Send(email,
		"You have been invited",
		fromUser+" invited you to join the server. Create an account to start chatting.\r\n")
}

func (c *Composite) SendInviteSMS(phone, fromUser string) error {
	if c.SMS == nil {
		return ErrSMSDisabled
	}
	return c.SMS.Send(phone, fromUser+" invited you to join the chat server.")
}

func (c *Composite) SendWelcome(email, username string) error {
	if c.Mail == nil {
		// Welcome mail is best-effort; without a mailer it is a no-op.
		log.Printf("notify: no mailer, skipping welcome for %s", username)
		return nil
	}
	return c.Mail.Send(email,
		"Welcome!",
		"Hello "+username+",\r\n\r\nYour account is ready.\r\n")
}
