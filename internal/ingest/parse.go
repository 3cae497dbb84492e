package ingest

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"
)

// parseRFC822 parses a raw RFC 822 message into a Message. Multipart
// bodies are walked for the first text/plain and text/html parts;
// anything with a Content-Disposition of attachment becomes an
// AttachmentPart.
func parseRFC822(r io.Reader) (*Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	out := &Message{
		MessageID: strings.Trim(msg.Header.Get("Message-ID"), "<>"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
	}

	if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		out.SenderEmail = from.Address
		out.SenderName = from.Name
	} else {
		out.SenderEmail = msg.Header.Get("From")
	}
	out.Recipients = addressList(msg.Header.Get("To"))
	out.CC = addressList(msg.Header.Get("Cc"))

	if date, err := msg.Header.Date(); err == nil {
		out.SentDate = date.UTC()
		out.ReceivedDate = date.UTC()
	} else {
		now := time.Now().UTC()
		out.SentDate = now
		out.ReceivedDate = now
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	if err := walkPart(out, msg.Body, contentType, msg.Header.Get("Content-Transfer-Encoding"), ""); err != nil {
		return nil, err
	}

	out.HasAttachments = len(out.Attachments) > 0
	out.Snippet = snippet(out.BodyText, 200)
	return out, nil
}

// walkPart recurses through a MIME tree collecting bodies and attachments.
func walkPart(out *Message, body io.Reader, contentType, transferEncoding, disposition string) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart part without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("next part: %w", err)
			}
			disp := part.Header.Get("Content-Disposition")
			if err := walkPart(out, part, part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), disp); err != nil {
				return err
			}
		}
	}

	dispType := ""
	dispParams := map[string]string{}
	if disposition != "" {
		dispType, dispParams, _ = mime.ParseMediaType(disposition)
	}

	if dispType == "attachment" {
		data, err := io.ReadAll(decodeTransfer(body, transferEncoding))
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		filename := decodeHeader(dispParams["filename"])
		if filename == "" {
			filename = decodeHeader(params["name"])
		}
		if filename == "" {
			filename = "attachment"
		}
		out.Attachments = append(out.Attachments, AttachmentPart{
			Filename:    filename,
			ContentType: mediaType,
			Size:        int64(len(data)),
			Data:        data,
		})
		return nil
	}

	switch mediaType {
	case "text/plain":
		if out.BodyText != "" {
			return nil
		}
		data, err := io.ReadAll(decodeTransfer(body, transferEncoding))
		if err != nil {
			return fmt.Errorf("read text body: %w", err)
		}
		out.BodyText = string(data)
	case "text/html":
		if out.BodyHTML != "" {
			return nil
		}
		data, err := io.ReadAll(decodeTransfer(body, transferEncoding))
		if err != nil {
			return fmt.Errorf("read html body: %w", err)
		}
		out.BodyHTML = string(data)
	}
	return nil
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// decodeHeader decodes RFC 2047 encoded words, falling back to the raw
// value on malformed input.
func decodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func addressList(s string) []string {
	if s == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(s)
	if err != nil {
		return []string{s}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
