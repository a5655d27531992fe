package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"

	_ "github.com/emersion/go-message/charset"

	"github.com/3leaps/gotrawl/pkg/scratch"
)

// MessageAdapter extracts mail bodies from RFC 822 messages and unpacks
// attachments into scratch for re-entry. Converted Outlook messages arrive
// here through the msg adapter.
type MessageAdapter struct{}

func (MessageAdapter) Extract(_ context.Context, path string, sm *scratch.Manager) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open message: %w", err)
	}
	defer f.Close()

	mr, err := mail.CreateReader(f)
	if err != nil {
		return Result{}, fmt.Errorf("parse message: %w", err)
	}

	var parts []string
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		parts = append(parts, subject)
	}

	var dir *scratch.Dir
	attachments := 0

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part ends the walk; keep what was read.
			break
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(io.LimitReader(p.Body, maxTextBytes))
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/html") {
				if text, err := htmlToText(strings.NewReader(string(body))); err == nil {
					parts = append(parts, text)
				}
				continue
			}
			if strings.HasPrefix(ct, "text/") || ct == "" {
				parts = append(parts, string(body))
			}
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			if err != nil || name == "" {
				continue
			}
			if dir == nil {
				d, err := sm.Acquire(filepath.Base(path))
				if err != nil {
					continue
				}
				dir = d
			}
			if err := saveAttachment(dir.Path(), name, p.Body); err != nil {
				continue
			}
			attachments++
		}
	}

	if dir != nil && attachments == 0 {
		dir.Release()
		dir = nil
	}
	return Result{Text: flatten(strings.Join(parts, " ")), Scratch: dir}, nil
}

func saveAttachment(dir, name string, body io.Reader) error {
	dst, err := os.Create(filepath.Join(dir, flattenEntryName(name)))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, io.LimitReader(body, maxZipEntryBytes))
	return err
}
