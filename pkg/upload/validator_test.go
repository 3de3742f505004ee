package upload

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMediaTypes(t *testing.T) {
	cases := []struct {
		mimeType string
		ok       bool
	}{
		{mimeType: "image/png", ok: true},
		{mimeType: "image/jpeg", ok: true},
		{mimeType: "image/webp", ok: true},
		{mimeType: "image/heic", ok: true},
		{mimeType: "image/heif", ok: true},
		{mimeType: "image/gif", ok: false},
		{mimeType: "application/pdf", ok: false},
		{mimeType: "IMAGE/PNG", ok: false},
		{mimeType: "", ok: false},
	}

	for _, tc := range cases {
		err := Validate(Candidate{Name: "a", MimeType: tc.mimeType, Size: 10}, 0, DefaultLimits())
		if tc.ok && err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", tc.mimeType, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("Validate(%q) expected rejection", tc.mimeType)
				continue
			}
			if !strings.Contains(err.Error(), "Unsupported image type") {
				t.Errorf("Validate(%q) unexpected reason: %s", tc.mimeType, err)
			}
		}
	}
}

func TestValidateSizeBoundary(t *testing.T) {
	limits := DefaultLimits()

	if err := Validate(Candidate{Name: "exact.png", MimeType: "image/png", Size: 20 * MiB}, 0, limits); err != nil {
		t.Fatalf("exactly 20MiB should pass, got %v", err)
	}

	err := Validate(Candidate{Name: "big.png", MimeType: "image/png", Size: 20*MiB + 1}, 0, limits)
	if err == nil {
		t.Fatal("20MiB+1 should fail")
	}
	if err.Error() != "big.png: File size exceeds 20MB limit" {
		t.Fatalf("unexpected size message: %s", err)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Name != "big.png" {
		t.Fatalf("expected ValidationError for big.png, got %#v", err)
	}
}

func TestValidateImage(t *testing.T) {
	limits := DefaultLimits()
	if err := ValidateImage("image/webp", 20*MiB, limits); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateImage("image/gif", 1, limits); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if err := ValidateImage("image/png", 20*MiB+1, limits); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestSetRejectsFourthCandidate(t *testing.T) {
	set := NewSet(DefaultLimits())
	if errs := set.Add(
		Candidate{Name: "1.png", MimeType: "image/png", Size: 1},
		Candidate{Name: "2.jpg", MimeType: "image/jpeg", Size: 1},
		Candidate{Name: "3.webp", MimeType: "image/webp", Size: 1},
	); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	errs := set.Add(Candidate{Name: "4.png", MimeType: "image/png", Size: 1})
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "up to 3 images") {
		t.Fatalf("unexpected message: %s", errs[0])
	}

	items := set.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(items))
	}
	for i, want := range []string{"1.png", "2.jpg", "3.webp"} {
		if items[i].Name != want {
			t.Errorf("item %d = %s, want %s", i, items[i].Name, want)
		}
	}
}

func TestSetAddsValidItemsFromMixedBatch(t *testing.T) {
	set := NewSet(DefaultLimits())
	errs := set.Add(
		Candidate{Name: "doc.pdf", MimeType: "application/pdf", Size: 1},
		Candidate{Name: "ok.png", MimeType: "image/png", Size: 1},
		Candidate{Name: "huge.jpg", MimeType: "image/jpeg", Size: 21 * MiB},
		Candidate{Name: "ok2.heic", MimeType: "image/heic", Size: 1},
	)

	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 accepted, got %d", set.Len())
	}
	if !strings.HasPrefix(errs[0].Error(), "doc.pdf:") || !strings.HasPrefix(errs[1].Error(), "huge.jpg:") {
		t.Fatalf("errors not reported per item: %v", errs)
	}
}

func TestSetRemoveAndReset(t *testing.T) {
	set := NewSet(Limits{})
	set.Add(
		Candidate{Name: "a.png", MimeType: "image/png", Size: 1},
		Candidate{Name: "b.png", MimeType: "image/png", Size: 1},
	)
	set.Remove(0)
	set.Remove(5)
	if set.Len() != 1 || set.Items()[0].Name != "b.png" {
		t.Fatalf("unexpected items after remove: %+v", set.Items())
	}
	set.Reset()
	if set.Len() != 0 {
		t.Fatalf("expected empty set after reset")
	}
}
