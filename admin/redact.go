package admin

import (
	"net/url"
	"regexp"
)

const redacted = "xxxxx"

var keywordPassword = regexp.MustCompile(`(password\s*=\s*)('[^']*'|\S+)`)

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

// redactDSN hides the password of a URL or keyword/value connection string
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
		q := u.Query()
		if q.Has("password") {
			q.Set("password", redacted)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}"+redacted)
}
