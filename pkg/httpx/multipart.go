package httpx

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// FilePart is a file field in a multipart form.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// MultipartBody renders fields and files into a buffered multipart/form-data
// body. Buffering lets the request be replayed after a token refresh.
func MultipartBody(fields map[string]string, files ...FilePart) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("copy file part %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
