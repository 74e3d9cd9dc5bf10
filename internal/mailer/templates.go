package mailer

import (
	"regexp"
	"strings"
)

// Template is a named email template. Variables documents the names the
// template recognizes; substitution itself is driven by the caller's
// variable bag.
type Template struct {
	ID        string
	Subject   string
	HTML      string
	Text      string
	Variables []string
}

// Registry holds the known templates, seeded at construction.
type Registry struct {
	templates map[string]Template
}

// NewRegistry builds the registry with the platform's stock templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range stockTemplates {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a template.
func (r *Registry) Register(t Template) {
	r.templates[t.ID] = t
}

// Get looks up a template by id.
func (r *Registry) Get(id string) (Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

var (
	ifBlockPattern  = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\}\}(.*?)\{\{/if\}\}`)
	variablePattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// Render substitutes {{variable}} tags and resolves single-level
// {{#if var}}...{{/if}} blocks. A block is kept when its variable is present
// and non-empty. Unknown variable tags pass through unchanged; no loops, no
// nested conditionals.
func Render(template string, vars map[string]string) string {
	out := ifBlockPattern.ReplaceAllStringFunc(template, func(block string) string {
		groups := ifBlockPattern.FindStringSubmatch(block)
		if vars[groups[1]] != "" {
			return groups[2]
		}
		return ""
	})

	return variablePattern.ReplaceAllStringFunc(out, func(tag string) string {
		name := variablePattern.FindStringSubmatch(tag)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return tag
	})
}

// RenderTemplate renders all three bodies of a template.
func RenderTemplate(t Template, vars map[string]string) (subject, html, text string) {
	return strings.TrimSpace(Render(t.Subject, vars)), Render(t.HTML, vars), Render(t.Text, vars)
}

var stockTemplates = []Template{
	{
		ID:      "session_reminder",
		Subject: "Reminder: session with {{mentorName}} on {{sessionDate}}",
		HTML: `<h2>Upcoming session</h2>
<p>Hi {{recipientName}},</p>
<p>Your session with <strong>{{mentorName}}</strong> is scheduled for {{sessionDate}} at {{sessionTime}}.</p>
{{#if meetingLink}}<p><a href="{{meetingLink}}">Join the session</a></p>{{/if}}
{{#if unsubscribeLink}}<p><a href="{{unsubscribeLink}}">Unsubscribe</a></p>{{/if}}`,
		Text: `Hi {{recipientName}},

Your session with {{mentorName}} is scheduled for {{sessionDate}} at {{sessionTime}}.
{{#if meetingLink}}Join: {{meetingLink}}
{{/if}}
{{#if unsubscribeLink}}Unsubscribe: {{unsubscribeLink}}{{/if}}`,
		Variables: []string{"recipientName", "mentorName", "sessionDate", "sessionTime", "meetingLink"},
	},
	{
		ID:      "connection_request",
		Subject: "{{requesterName}} wants to connect with you",
		HTML: `<h2>New connection request</h2>
<p>Hi {{recipientName}},</p>
<p><strong>{{requesterName}}</strong> sent you a connection request.</p>
{{#if requesterMessage}}<blockquote>{{requesterMessage}}</blockquote>{{/if}}
<p><a href="{{profileLink}}">View their profile</a></p>
{{#if unsubscribeLink}}<p><a href="{{unsubscribeLink}}">Unsubscribe</a></p>{{/if}}`,
		Text: `Hi {{recipientName}},

{{requesterName}} sent you a connection request.
{{#if requesterMessage}}They wrote: {{requesterMessage}}
{{/if}}View their profile: {{profileLink}}

{{#if unsubscribeLink}}Unsubscribe: {{unsubscribeLink}}{{/if}}`,
		Variables: []string{"recipientName", "requesterName", "requesterMessage", "profileLink"},
	},
	{
		ID:      "new_message",
		Subject: "New message from {{senderName}}",
		HTML: `<h2>You have a new message</h2>
<p>Hi {{recipientName}},</p>
<p><strong>{{senderName}}</strong> sent you a message:</p>
<blockquote>{{messagePreview}}</blockquote>
<p><a href="{{conversationLink}}">Open the conversation</a></p>
{{#if unsubscribeLink}}<p><a href="{{unsubscribeLink}}">Unsubscribe</a></p>{{/if}}`,
		Text: `Hi {{recipientName}},

{{senderName}} sent you a message:

{{messagePreview}}

Open the conversation: {{conversationLink}}

{{#if unsubscribeLink}}Unsubscribe: {{unsubscribeLink}}{{/if}}`,
		Variables: []string{"recipientName", "senderName", "messagePreview", "conversationLink"},
	},
	{
		ID:      "weekly_digest",
		Subject: "Your weekly activity digest",
		HTML: `<h2>This week on the platform</h2>
<p>Hi {{recipientName}},</p>
{{#if newMessages}}<p>Unread messages: {{newMessages}}</p>{{/if}}
{{#if upcomingSessions}}<p>Upcoming sessions: {{upcomingSessions}}</p>{{/if}}
{{#if newConnections}}<p>New connections: {{newConnections}}</p>{{/if}}
{{#if unsubscribeLink}}<p><a href="{{unsubscribeLink}}">Unsubscribe</a></p>{{/if}}`,
		Text: `Hi {{recipientName}},

{{#if newMessages}}Unread messages: {{newMessages}}
{{/if}}{{#if upcomingSessions}}Upcoming sessions: {{upcomingSessions}}
{{/if}}{{#if newConnections}}New connections: {{newConnections}}
{{/if}}
{{#if unsubscribeLink}}Unsubscribe: {{unsubscribeLink}}{{/if}}`,
		Variables: []string{"recipientName", "newMessages", "upcomingSessions", "newConnections"},
	},
}
