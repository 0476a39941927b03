package telephony

import (
	"net/http"
	"strings"
)

// InboundForm captures the subset of voice webhook fields we care about.
// The provider sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only. Session decisions are not made
// here.
type InboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
	Direction  string
	CallerName string
}

func ParseInboundCall(r *http.Request) (InboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundForm{}, err
	}
	f := InboundForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
		Direction:  r.PostFormValue("Direction"),
		CallerName: r.PostFormValue("CallerName"),
	}
	return f, nil
}

func normalizePhone(s string) string {
	// The provider sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

// Ended reports whether the webhook signals call teardown rather than setup.
func (f InboundForm) Ended() bool {
	switch f.CallStatus {
	case "completed", "busy", "failed", "no-answer", "canceled":
		return true
	default:
		return false
	}
}

// Metadata is the channel-specific context recorded on the session.
func (f InboundForm) Metadata() map[string]string {
	m := map[string]string{
		"call_sid": f.CallSid,
		"to":       f.To,
	}
	if f.CallerName != "" {
		m["caller_name"] = f.CallerName
	}
	return m
}
