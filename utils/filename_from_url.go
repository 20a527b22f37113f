package utils

import (
	"mime"
	"net/url"
	"path/filepath"
)

// FilenameFromUrl takes input as a escaped url & outputs filename from it (unescaped - normal one)
func FilenameFromUrl(inputUrl string) (string, error) {
	u, err := url.Parse(inputUrl)
	if err != nil {
		return "", err
	}
	x, _ := url.QueryUnescape(u.EscapedPath())
	return filepath.Base(x), nil
}

// FilenameFromContentDisposition returns the filename parameter of a
// Content-Disposition header, or "" when absent.
func FilenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	// mime decodes RFC 2231 filename* into filename
	name := params["filename"]
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}
