package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
)

const (
	ContentTypeJSON      = "application/json"
	ContentTypeJSONPatch = "application/json-patch+json"
	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"
	ContentTypeOctet     = "application/octet-stream"
)

// MediaType strips parameters and lower-cases a content type.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// PrepareBody serializes data for JSON and form content types.
func PrepareBody(body any, bodyType string) ([]byte, string, error) {
	if body == nil {
		return nil, "", nil
	}

	switch MediaType(bodyType) {
	case ContentTypeJSON, ContentTypeJSONPatch:
		switch v := body.(type) {
		case json.RawMessage:
			return v, bodyType, nil
		case []byte:
			return v, bodyType, nil
		}
		buf, err := json.Marshal(body)
		return buf, bodyType, err
	case ContentTypeForm:
		vals, err := formValues(body)
		if err != nil {
			return nil, "", err
		}
		return []byte(vals.Encode()), ContentTypeForm, nil
	default:
		return nil, "", fmt.Errorf("unsupported body_type: %s", bodyType)
	}
}

func formValues(body any) (url.Values, error) {
	vals := url.Values{}
	switch v := body.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		for k, s := range v {
			vals.Set(k, s)
		}
		return vals, nil
	case map[string]any:
		for k, x := range v {
			vals.Set(k, formValue(x))
		}
		return vals, nil
	}
	// structs go through their JSON shape
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("form body must be an object: %w", err)
	}
	return formValues(m)
}

func formValue(x any) string {
	switch v := x.(type) {
	case string:
		return v
	case map[string]any, []any:
		raw, _ := json.Marshal(v)
		return string(raw)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MultipartPart is one field or file of a multipart/form-data body.
type MultipartPart struct {
	PartName    string
	Data        any
	FileStream  io.Reader
	FileName    string
	ContentType string
}

// MultipartBody lays out parts as a chain of readers so file streams are
// never buffered in memory. Part headers and fields are serialized up front.
func MultipartBody(parts []MultipartPart) (io.Reader, string, error) {
	var (
		readers []io.Reader
		buf     bytes.Buffer
	)
	mw := multipart.NewWriter(&buf)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		readers = append(readers, bytes.NewReader(bytes.Clone(buf.Bytes())))
		buf.Reset()
	}

	for _, p := range parts {
		if p.FileStream != nil {
			h := make(textproto.MIMEHeader)
			fileName := p.FileName
			if fileName == "" {
				fileName = "file"
			}
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.PartName), escapeQuotes(fileName)))
			ct := p.ContentType
			if ct == "" {
				ct = ContentTypeOctet
			}
			h.Set("Content-Type", ct)
			if _, err := mw.CreatePart(h); err != nil {
				return nil, "", err
			}
			flush()
			readers = append(readers, p.FileStream)
			continue
		}

		fw, err := mw.CreateFormField(p.PartName)
		if err != nil {
			return nil, "", err
		}
		var value []byte
		switch v := p.Data.(type) {
		case string:
			value = []byte(v)
		case []byte:
			value = v
		default:
			value, err = json.Marshal(v)
			if err != nil {
				return nil, "", fmt.Errorf("multipart field %s: %w", p.PartName, err)
			}
		}
		if _, err := fw.Write(value); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	flush()

	return io.MultiReader(readers...), mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
