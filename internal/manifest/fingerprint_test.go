package manifest

import "testing"

func TestFingerprintIgnoresAuthoringNoise(t *testing.T) {
	a, err := Parse([]byte(`
system:
  - libgomp1
  - build-essential
packages:
  - flask==3.0
  - uvicorn==0.29
`))
	if err != nil {
		t.Fatalf("parse a: %v", err)
	}

	// Same logical content: reordered, recased, extra whitespace, comments,
	// and a duplicate entry.
	b, err := Parse([]byte(`
# dependencies
packages:
  - uvicorn==0.29
  - Flask==3.0
  - flask==3.0

system:
  -   build-essential
  - libgomp1
`))
	if err != nil {
		t.Fatalf("parse b: %v", err)
	}

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ:\n  a = %s\n  b = %s", a.Fingerprint(), b.Fingerprint())
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	base, err := Parse([]byte("packages:\n  - flask==3.0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	changed := []string{
		"packages:\n  - flask==3.1\n",
		"packages:\n  - flask>=3.0\n",
		"packages:\n  - flask==3.0 @https://pypi.example/simple\n",
		"packages:\n  - flask==3.0\nsystem:\n  - libgomp1\n",
	}

	for _, src := range changed {
		m, err := Parse([]byte(src))
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		if m.Fingerprint() == base.Fingerprint() {
			t.Errorf("fingerprint unchanged for %q", src)
		}
	}
}

func TestFingerprintIsStable(t *testing.T) {
	m, err := Parse([]byte("packages:\n  - flask==3.0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Fingerprint() != m.Fingerprint() {
		t.Fatal("fingerprint is not deterministic")
	}
	if err := m.Fingerprint().Validate(); err != nil {
		t.Fatalf("fingerprint is not a valid digest: %v", err)
	}
}
