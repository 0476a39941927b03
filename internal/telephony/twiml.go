package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"sort"
	"strings"
)

// Minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name     `xml:"Connect"`
	Stream  *twimlStream `xml:"Stream,omitempty"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// RenderStream produces the call-control response that directs the caller's
// media to the streaming endpoint. params are passed through to the stream as
// custom parameters (e.g., the conversation id).
func RenderStream(streamURL string, params map[string]string) (string, error) {
	if strings.TrimSpace(streamURL) == "" {
		return "", errors.New("telephony: stream url required")
	}

	st := &twimlStream{URL: streamURL}
	for _, name := range sortedKeys(params) {
		st.Parameters = append(st.Parameters, twimlParameter{Name: name, Value: params[name]})
	}

	var r twimlResponse
	r.Verbs = append(r.Verbs, twimlConnect{Stream: st})
	return render(r)
}

// RenderSayHangup speaks a message and ends the call. Used both for call
// teardown acknowledgements and as the safe fallback when intake fails: the
// far end is a carrier, not a programmable client, so it must always receive
// valid markup.
func RenderSayHangup(message string) string {
	var r twimlResponse
	if strings.TrimSpace(message) != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: message})
	}
	r.Verbs = append(r.Verbs, twimlHangup{})

	out, err := render(r)
	if err != nil {
		// A Say/Hangup pair cannot fail to encode; keep a literal fallback
		// anyway so callers never receive an empty body.
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return out
}

func render(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
