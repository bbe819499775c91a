package e2e

import (
	"strings"
	"testing"
)

func TestLongDoc(t *testing.T) {
	d := longDoc("big.txt", 50)
	if strings.Count(d.Text, "\n") != 50 {
		t.Errorf("expected 50 lines, got %d", strings.Count(d.Text, "\n"))
	}
}

func TestMultipartBody(t *testing.T) {
	buf, contentType, err := multipartBody(corpus)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Errorf("content type %q", contentType)
	}
	body := buf.String()
	for _, d := range corpus {
		if !strings.Contains(body, d.Name) {
			t.Errorf("body missing %s", d.Name)
		}
	}
}
