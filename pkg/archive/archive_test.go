package archive

import "testing"

func TestDetectKind(t *testing.T) {
	cases := map[string]Kind{
		"numpy-1.26.0-py311h48b7412_0.conda":  KindConda,
		"numpy-1.26.0-py311h48b7412_0.tar.bz2": KindCondaBz2,
		"source-1.0.tar.xz":                   KindTarXZ,
		"source-1.0.tar.gz":                   KindTarGZ,
		"source-1.0.tgz":                      KindTarGZ,
		"README.md":                           KindUnknown,
	}
	for name, want := range cases {
		if got := DetectKind(name); got != want {
			t.Errorf("DetectKind(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExtractInfo_UnknownFormat(t *testing.T) {
	if _, err := ExtractInfo("not-a-package.zip"); err == nil {
		t.Fatal("expected error for unrecognized package format")
	}
}
