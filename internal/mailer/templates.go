package mailer

import "fmt"

// InvitationEmail renders the invite sent to a prospective client. link
// points at the frontend accept page with the invite token appended.
func InvitationEmail(to, inviterName, link string) Message {
	text := fmt.Sprintf(
		"%s has invited you to collaborate on DataCove.\n\n"+
			"Open the link below to set up your account. The invitation expires in 72 hours.\n\n%s\n",
		inviterName, link,
	)
	html := fmt.Sprintf(
		`<p><strong>%s</strong> has invited you to collaborate on DataCove.</p>`+
			`<p>Open the link below to set up your account. The invitation expires in 72 hours.</p>`+
			`<p><a href="%s">Accept invitation</a></p>`,
		inviterName, link,
	)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s invited you to DataCove", inviterName),
		Text:    text,
		HTML:    html,
	}
}

// OTPEmail renders the email verification code message.
func OTPEmail(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your DataCove verification code",
		Text:    fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.\n", code),
		HTML:    fmt.Sprintf(`<p>Your verification code is <strong>%s</strong>. It expires in 10 minutes.</p>`, code),
	}
}

// ResetEmail renders the password reset message. link carries the reset
// token and expires in one hour.
func ResetEmail(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Reset your DataCove password",
		Text:    fmt.Sprintf("A password reset was requested for your account.\n\nReset it here (valid for 1 hour):\n%s\n\nIf you did not request this, ignore this email.\n", link),
		HTML: fmt.Sprintf(
			`<p>A password reset was requested for your account.</p>`+
				`<p><a href="%s">Reset your password</a> (valid for 1 hour)</p>`+
				`<p>If you did not request this, ignore this email.</p>`, link),
	}
}
