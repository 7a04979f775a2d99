// Package notify is the user-visible notification channel: toasts carrying a
// severity and a localization key.
package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/entcache"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityDanger  Severity = "danger"
)

type Toast struct {
	ID       string
	Severity Severity
	Key      string
	Params   map[string]any
}

// New builds a toast with a fresh id.
func New(sev Severity, key string, params map[string]any) Toast {
	return Toast{ID: uuid.NewString(), Severity: sev, Key: key, Params: params}
}

type Notifier interface {
	Notify(Toast)
}

// Func adapts a function to Notifier.
type Func func(Toast)

func (f Func) Notify(t Toast) { f(t) }

// Nop drops every toast.
type Nop struct{}

func (Nop) Notify(Toast) {}

// Multi fans a toast out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(t Toast) {
	for _, n := range m {
		if n != nil {
			n.Notify(t)
		}
	}
}

// Recorder keeps every toast in memory.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Notify(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	r.mu.Unlock()
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.toasts = nil
	r.mu.Unlock()
}

// Translator renders a toast key. i18n.Catalog satisfies it.
type Translator interface {
	Translate(key string, params map[string]any, count ...float64) string
}

// LogNotifier writes toasts to a Logger, translated when T is set.
type LogNotifier struct {
	Log entcache.Logger
	T   Translator
}

func (n LogNotifier) Notify(t Toast) {
	if n.Log == nil {
		return
	}
	msg := t.Key
	if n.T != nil {
		msg = n.T.Translate(t.Key, t.Params)
	}
	f := entcache.Fields{"toast": t.ID, "severity": string(t.Severity), "key": t.Key}
	if t.Severity == SeverityDanger {
		n.Log.Warn(msg, f)
		return
	}
	n.Log.Info(msg, f)
}
