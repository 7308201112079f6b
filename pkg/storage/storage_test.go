package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestSniffAcceptsAllowedType(t *testing.T) {
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 64)...)

	up, err := Sniff(FolderMedicines, bytes.NewReader(body), ImageTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.ContentType != "image/png" || up.Extension != ".png" || up.Folder != FolderMedicines {
		t.Fatalf("unexpected upload %+v", up)
	}
	replayed, _ := io.ReadAll(up.Body)
	if !bytes.Equal(replayed, body) {
		t.Fatalf("expected body to be replayed in full")
	}
}

func TestSniffRejectsOtherTypes(t *testing.T) {
	_, err := Sniff(FolderPrescriptions, bytes.NewReader([]byte("just some text")), PrescriptionDocs)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSniffAcceptsPDFForPrescriptions(t *testing.T) {
	up, err := Sniff(FolderPrescriptions, bytes.NewReader([]byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")), PrescriptionDocs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.ContentType != "application/pdf" {
		t.Fatalf("expected pdf, got %s", up.ContentType)
	}
}

func TestDisabledStoreRejectsUploads(t *testing.T) {
	var store ImageStore = Disabled{}
	if _, err := store.Upload(context.Background(), Upload{Folder: FolderPrescriptions}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if err := store.Destroy(context.Background(), "prescriptions/x.png"); err != nil {
		t.Fatalf("destroy should be a no-op, got %v", err)
	}
}
