package mailer

import (
	"errors"
	"net/smtp"
)

// loginAuth implements the SMTP LOGIN authentication mechanism, which
// smtp.Auth in the standard library does not provide (only PLAIN and
// CRAM-MD5 ship there). The teacher references this exact type
// (mail/mail.go's "login" case) without defining it; this is the missing
// implementation.
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch string(fromServer) {
	case "Username:":
		return []byte(a.username), nil
	case "Password:":
		return []byte(a.password), nil
	default:
		return nil, errors.New("mailer: unexpected LOGIN auth server prompt")
	}
}
