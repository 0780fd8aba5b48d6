package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

const (
	flashSessionName = "puzzlebox-flash"
	flashMaxAge      = 3600
)

// Flash kinds, also used as CSS classes by the templates.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "error"
)

var flashKinds = []string{FlashSuccess, FlashWarning, FlashError}

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// FlashStore keeps flash messages in a signed cookie between a form post and
// the redirected page.
type FlashStore struct {
	store sessions.Store
}

// NewFlashStore creates a cookie-backed flash store signed with secret.
func NewFlashStore(secret string) *FlashStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &FlashStore{store: store}
}

// Add queues a message for the next page render.
func (f *FlashStore) Add(c *gin.Context, kind, message string) error {
	session, err := f.store.Get(c.Request, flashSessionName)
	if err != nil && session == nil {
		return err
	}
	session.AddFlash(message, kind)
	return session.Save(c.Request, c.Writer)
}

// Pop returns and clears all queued messages. It must run before the
// response body is written.
func (f *FlashStore) Pop(c *gin.Context) []Flash {
	session, err := f.store.Get(c.Request, flashSessionName)
	if session == nil {
		return nil
	}
	var flashes []Flash
	for _, kind := range flashKinds {
		for _, v := range session.Flashes(kind) {
			if msg, ok := v.(string); ok {
				flashes = append(flashes, Flash{Kind: kind, Message: msg})
			}
		}
	}
	// A cookie signed with an old secret is simply dropped.
	if len(flashes) > 0 || err != nil {
		_ = session.Save(c.Request, c.Writer)
	}
	return flashes
}
