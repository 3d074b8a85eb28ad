package disklayout

import "testing"

func TestIncompatFeaturesHas(t *testing.T) {
	f := IncompatExtents | IncompatFileType
	if !f.Has(IncompatExtents) {
		t.Error("expected IncompatExtents set")
	}
	if f.Has(IncompatMetaBG) {
		t.Error("IncompatMetaBG should not be set")
	}
}

func TestIncompatFeaturesString(t *testing.T) {
	if got := IncompatFeatures(0).String(); got != "(none)" {
		t.Errorf("String() = %q, want (none)", got)
	}
	got := (IncompatExtents | Incompat64Bit).String()
	if got != "extents|64bit" {
		t.Errorf("String() = %q, want extents|64bit", got)
	}
}

func TestFileTypeFromMode(t *testing.T) {
	cases := []struct {
		mode uint16
		want FileType
	}{
		{0x8180, FileTypeRegular},
		{0x41ed, FileTypeDirectory},
		{0xA1ff, FileTypeSymlink},
		{0, FileTypeUnknown},
	}
	for _, tc := range cases {
		if got := FileTypeFromMode(tc.mode); got != tc.want {
			t.Errorf("FileTypeFromMode(0x%x) = %v, want %v", tc.mode, got, tc.want)
		}
	}
}

func TestIsDirIsRegularIsSymlink(t *testing.T) {
	if !IsDir(0x41ed) {
		t.Error("0x41ed should be a directory")
	}
	if !IsRegular(0x8180) {
		t.Error("0x8180 should be a regular file")
	}
	if !IsSymlink(0xA1ff) {
		t.Error("0xA1ff should be a symlink")
	}
}
