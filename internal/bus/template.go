package bus

import "strings"

// Template is a predicate used to select messages from a mailbox.
type Template func(*Message) bool

// MatchAll accepts every message.
func MatchAll() Template {
	return func(*Message) bool { return true }
}

func MatchSender(name string) Template {
	return func(m *Message) bool { return m.From == name }
}

func MatchContent(content string) Template {
	return func(m *Message) bool { return m.Content == content }
}

func MatchContentContains(substr string) Template {
	return func(m *Message) bool { return strings.Contains(m.Content, substr) }
}

func MatchTag(tag string) Template {
	return func(m *Message) bool { return m.Tag == tag }
}

func MatchPerformative(p Performative) Template {
	return func(m *Message) bool { return m.Performative == p }
}

// And matches when every template matches. An empty And matches everything.
func And(templates ...Template) Template {
	return func(m *Message) bool {
		for _, t := range templates {
			if !t(m) {
				return false
			}
		}
		return true
	}
}

// Or matches when any template matches.
func Or(templates ...Template) Template {
	return func(m *Message) bool {
		for _, t := range templates {
			if t(m) {
				return true
			}
		}
		return false
	}
}

func Not(t Template) Template {
	return func(m *Message) bool { return !t(m) }
}
