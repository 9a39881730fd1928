package format

import "testing"

func TestDetectMagic(t *testing.T) {
	cases := []struct {
		name   string
		header []byte
		want   Kind
	}{
		{"id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), MP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, MP3},
		{"wav", append([]byte("RIFF\x24\x00\x00\x00"), []byte("WAVE")...), WAV},
		{"flac", []byte("fLaC\x00\x00\x00\x22"), FLAC},
		{"ogg vorbis", append([]byte("OggS\x00\x02"), make([]byte, 40)...), OGGVorbis},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, Unknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectMagic(c.header); got != c.want {
				t.Fatalf("DetectMagic(%q) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestDetectMagicOpusVsVorbis(t *testing.T) {
	header := append([]byte("OggS\x00\x02"), make([]byte, 20)...)
	header = append(header, []byte("OpusHead")...)
	if got := DetectMagic(header); got != Opus {
		t.Fatalf("DetectMagic(opus page) = %v, want Opus", got)
	}
}

func TestDetectMagicMP4(t *testing.T) {
	header := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypM4A ")...)
	if got := DetectMagic(header); got != MP4 {
		t.Fatalf("DetectMagic(mp4) = %v, want MP4", got)
	}
}

func TestDetectMagicShortHeaderIsUnknown(t *testing.T) {
	if got := DetectMagic([]byte{0xFF}); got != Unknown {
		t.Fatalf("DetectMagic(short) = %v, want Unknown", got)
	}
}

func TestExtHint(t *testing.T) {
	cases := map[string]Kind{
		"song.mp3":  MP3,
		"song.WAV":  WAV,
		"song.flac": FLAC,
		"song.opus": Opus,
		"song.m4a":  MP4,
		"song.xyz":  Unknown,
	}
	for path, want := range cases {
		if got := ExtHint(path); got != want {
			t.Fatalf("ExtHint(%q) = %v, want %v", path, got, want)
		}
	}
}
