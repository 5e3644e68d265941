package urlutil

import "testing"

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://www.leboncoin.fr/recherche?text=velo",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://shop.example/search?q=bike", "/item/42", "https://shop.example/item/42"},
		{"https://shop.example/search/", "item/42", "https://shop.example/search/item/42"},
		{"https://shop.example/search", "https://cdn.example/a.jpg", "https://cdn.example/a.jpg"},
		{"https://shop.example/search", "//cdn.example/a.jpg", "https://cdn.example/a.jpg"},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.href); got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestStripTracking(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://shop.example/item/42?utm_source=x&utm_medium=y", "https://shop.example/item/42"},
		{"https://shop.example/item/42?id=7&fbclid=abc#photos", "https://shop.example/item/42?id=7"},
		{"https://shop.example/item/42?id=7", "https://shop.example/item/42?id=7"},
	}
	for _, tt := range tests {
		if got := StripTracking(tt.in); got != tt.want {
			t.Errorf("StripTracking(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
