package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core"
)

func TestConsoleService_SendMessage(t *testing.T) {
	conf := core.NewTestConfig()
	out := new(strings.Builder)
	svc := newConsoleService(conf, nil, out)

	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantOut  []string
		wantNone bool
	}{
		{
			name:     "no recipient",
			msg:      core.EmailMessage{Subject: "Hi", BodyStr: "hello"},
			wantNone: true,
		},
		{
			name:     "no content",
			msg:      core.EmailMessage{To: []mail.Address{{Address: "jon@test.cd"}}, Subject: "Hi"},
			wantNone: true,
		},
		{
			name: "plain body",
			msg: core.EmailMessage{
				To:      []mail.Address{{Name: "Jon", Address: "jon@test.cd"}},
				Cc:      []mail.Address{{Address: "cc@test.cd"}},
				Subject: "Hi",
				BodyStr: "hello",
			},
			wantOut: []string{
				"From: \"Matokeo\" <noreply@localhost>",
				"Subject: [Matokeo] Hi",
				"To: \"Jon\" <jon@test.cd>",
				"Cc: <cc@test.cd>",
				"Content-Type: text/plain; charset=utf-8",
				"hello",
			},
		},
		{
			name: "template",
			msg: core.EmailMessage{
				To:           []mail.Address{{Address: "hero@test.cd"}},
				Subject:      "CS101 results published",
				TemplateName: "results_published",
				TemplateData: map[string]interface{}{
					"Name":         "Hero",
					"CourseCode":   "CS101",
					"CourseTitle":  "Intro",
					"Semester":     1,
					"AcademicYear": "2023-2024",
					"Total":        "90.5",
					"Grade":        "A+",
				},
			},
			wantOut: []string{"Subject: [Matokeo] CS101 results published", "CS101", "90.5", "A+"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			msg := tt.msg
			require.NoError(t, svc.sendMessage(&msg))
			if tt.wantNone {
				assert.Empty(t, out.String())
				return
			}
			for _, s := range tt.wantOut {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestConsoleServiceMock(t *testing.T) {
	mock := NewConsoleServiceMock(core.NewTestConfig())
	mock.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "a@test.cd"}}, Subject: "A", BodyStr: "a"},
		&core.EmailMessage{Subject: "dropped", BodyStr: "b"},
	)
	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a", sent[0].TextContent)

	mock.Reset()
	assert.Empty(t, mock.Sent())
}

func TestSendgridService_Prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, nil).(*sendgridService)

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Jon", Address: "jon@test.cd"}},
		Bcc:         []mail.Address{{Address: "audit@test.cd"}},
		Subject:     "Hi",
		TextContent: "hello",
		HTMLContent: "<p>hello</p>",
	})
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Matokeo] Hi", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "jon@test.cd", p.To[0].Address)
	require.Len(t, p.BCC, 1)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
