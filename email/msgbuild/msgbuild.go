// Package msgbuild assembles outbound multipart/alternative MIME
// messages. The header block and body are returned separately so the
// caller can sign them before concatenation.
package msgbuild

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// Message is the outbound message to encode. From, To, and Cc hold
// formatted mailboxes ("Name <addr@host>" or bare addresses).
type Message struct {
	From      string
	To        []string
	Cc        []string
	ReplyTo   string
	Subject   string
	Date      time.Time
	MessageID string
	Text      string
	HTML      string
}

// Build renders the message. The returned header block has every line
// CRLF-terminated (including the last); body is the multipart payload.
// The final wire form is headers + CRLF + body.
func (m *Message) Build() (headers, body []byte, err error) {
	if m.From == "" {
		return nil, nil, errors.New("msgbuild: message has no sender")
	}
	if len(m.To) == 0 {
		return nil, nil, errors.New("msgbuild: message has no recipients")
	}

	boundary := randBoundary()

	var bodyBuf bytes.Buffer
	mw := multipart.NewWriter(&bodyBuf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, nil, fmt.Errorf("msgbuild: %w", err)
	}
	if err := writeTextPart(mw, "text/plain; charset=utf-8", m.Text); err != nil {
		return nil, nil, err
	}
	if err := writeTextPart(mw, "text/html; charset=utf-8", m.HTML); err != nil {
		return nil, nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, nil, fmt.Errorf("msgbuild: %w", err)
	}

	var hdr bytes.Buffer
	writeHeader(&hdr, "From", m.From)
	writeHeader(&hdr, "To", strings.Join(m.To, ", "))
	if len(m.Cc) > 0 {
		writeHeader(&hdr, "Cc", strings.Join(m.Cc, ", "))
	}
	if m.ReplyTo != "" {
		writeHeader(&hdr, "Reply-To", m.ReplyTo)
	}
	writeHeader(&hdr, "Subject", m.Subject)
	writeHeader(&hdr, "Date", m.Date.Format(time.RFC1123Z))
	writeHeader(&hdr, "Message-ID", m.MessageID)
	writeHeader(&hdr, "MIME-Version", "1.0")
	writeHeader(&hdr, "Content-Type", `multipart/alternative; boundary="`+boundary+`"`)

	return hdr.Bytes(), bodyBuf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writeTextPart(mw *multipart.Writer, contentType, content string) error {
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := mw.CreatePart(hdr)
	if err != nil {
		return fmt.Errorf("msgbuild: %w", err)
	}
	qpw := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qpw, content); err != nil {
		return fmt.Errorf("msgbuild: %w", err)
	}
	if err := qpw.Close(); err != nil {
		return fmt.Errorf("msgbuild: %w", err)
	}
	return nil
}

func randBoundary() string {
	var buf [12]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		panic(err)
	}
	// '.' is a valid boundary byte but not a valid base64 byte, which
	// separates the boundary from any base64-encoded content.
	return "." + base64.StdEncoding.EncodeToString(buf[:]) + "."
}
