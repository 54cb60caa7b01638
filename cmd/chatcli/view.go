package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"wellness-chat/internal/chatview"
	"wellness-chat/internal/models"
	"wellness-chat/internal/upload"
)

const (
	ansiReset = "\x1b[0m"
	ansiDim   = "\x1b[2m"
	ansiInv   = "\x1b[7m"
)

// terminalView prints renders as lines. Message lists are printed once per
// message; later renders only print rows not yet seen.
type terminalView struct {
	out io.Writer

	mu       sync.Mutex
	dark     bool
	printed  map[string]chatview.Receipt
	presence string
}

func (v *terminalView) setDark(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dark = on
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.linef(format, args...)
}

func (v *terminalView) linef(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if v.dark {
		line = ansiInv + line + ansiReset
	}
	fmt.Fprintln(v.out, line)
}

func (v *terminalView) RenderGroups(groups []models.Group, self string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(groups) == 0 {
		v.linef("no groups")
		return
	}
	for _, g := range groups {
		mark := " "
		if g.HasMember(self) {
			mark = "*"
		}
		v.linef("%s %s  %s (%d members)", mark, g.ID, g.Name, len(g.Members))
	}
}

func (v *terminalView) RenderSelected(g *models.Group) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if g == nil {
		v.printed = nil
		return
	}
	if v.printed == nil {
		v.printed = make(map[string]chatview.Receipt)
		v.linef("== %s ==", g.Name)
	}
}

func (v *terminalView) RenderMessages(rows []chatview.MessageView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.printed == nil {
		v.printed = make(map[string]chatview.Receipt)
	}
	for _, row := range rows {
		m := row.Message
		prev, seen := v.printed[m.ID]
		if seen && (!row.Mine || prev == row.Receipt) {
			continue
		}
		v.printed[m.ID] = row.Receipt
		if seen {
			v.linef("%s  [%s]", ansiDim+m.ID+ansiReset, row.Receipt)
			continue
		}

		var body strings.Builder
		body.WriteString(m.Text)
		if m.AttachmentURL != "" {
			if body.Len() > 0 {
				body.WriteString(" ")
			}
			if row.Image {
				body.WriteString("[image] " + m.AttachmentURL)
			} else {
				body.WriteString("[file] " + m.AttachmentURL)
			}
		}
		stamp := "--:--"
		if m.CreatedAt != nil {
			stamp = m.CreatedAt.Local().Format("15:04")
		}
		line := fmt.Sprintf("%s %s: %s", stamp, m.SenderDisplayName, body.String())
		if row.Mine {
			line += fmt.Sprintf("  [%s]", row.Receipt)
		}
		v.linef("%s", line)
	}
}

func (v *terminalView) RenderTyping(line string) {
	if line == "" {
		return
	}
	v.printf("%s", ansiDim+line+ansiReset)
}

// RenderPresence prints who else is online whenever that set changes.
func (v *terminalView) RenderPresence(users []models.User, self string) {
	var names []string
	for _, u := range users {
		if !u.Online || u.ID == self {
			continue
		}
		name := u.DisplayName
		if name == "" {
			name = u.Email
		}
		names = append(names, name)
	}
	line := "nobody else online"
	if len(names) > 0 {
		line = "online: " + strings.Join(names, ", ")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if users == nil {
		v.presence = ""
		return
	}
	if line == v.presence {
		return
	}
	v.presence = line
	v.linef("%s", ansiDim+line+ansiReset)
}

func (v *terminalView) RenderUploadProgress(name string, pct upload.Progress) {
	if pct%25 != 0 {
		return
	}
	v.printf("uploading %s: %d%%", name, pct)
}

func (v *terminalView) RenderError(err error) {
	v.printf("error: %v", err)
}
