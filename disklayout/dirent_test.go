package disklayout

import "testing"

func TestParseDirentWithFileType(t *testing.T) {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = 42, 0, 0, 0 // inode = 42
	b[4], b[5] = 16, 0                   // rec_len = 16
	b[6] = 5                             // name_len
	b[7] = 2                             // file type = directory
	copy(b[8:], "admin")

	d, recLen, err := ParseDirent(b, true)
	if err != nil {
		t.Fatalf("ParseDirent: %v", err)
	}
	if recLen != 16 {
		t.Errorf("recLen = %d, want 16", recLen)
	}
	if d == nil {
		t.Fatal("expected non-nil dirent")
	}
	if d.Inode != 42 || d.FileName != "admin" || d.FileType != FileTypeDirectory || !d.HasFileType() {
		t.Errorf("got %+v", d)
	}
}

func TestParseDirentWithoutFileType(t *testing.T) {
	b := make([]byte, 16)
	b[0] = 7 // inode = 7
	b[4], b[5] = 16, 0
	b[6] = 3 // name_len low byte
	b[7] = 0 // name_len high byte
	copy(b[8:], "etc")

	d, _, err := ParseDirent(b, false)
	if err != nil {
		t.Fatalf("ParseDirent: %v", err)
	}
	if d.FileName != "etc" || d.HasFileType() {
		t.Errorf("got %+v", d)
	}
}

func TestParseDirentDeletedSlot(t *testing.T) {
	b := make([]byte, 16)
	b[4], b[5] = 16, 0 // rec_len spans the slot; inode stays 0

	d, recLen, err := ParseDirent(b, true)
	if err != nil {
		t.Fatalf("ParseDirent: %v", err)
	}
	if d != nil {
		t.Errorf("expected nil dirent for a deleted slot, got %+v", d)
	}
	if recLen != 16 {
		t.Errorf("recLen = %d, want 16", recLen)
	}
}

func TestParseDirentRejectsNameOverrunningRecord(t *testing.T) {
	b := make([]byte, 16)
	b[0] = 1
	b[4], b[5] = 10, 0 // rec_len too small for the claimed name_len
	b[6] = 200
	b[7] = 1

	_, _, err := ParseDirent(b, true)
	if err == nil {
		t.Fatal("expected error for name overrunning record")
	}
}

func TestParseDirentRejectsShortBuffer(t *testing.T) {
	_, _, err := ParseDirent(make([]byte, 4), true)
	if err == nil {
		t.Fatal("expected error for buffer shorter than fixed header")
	}
}
